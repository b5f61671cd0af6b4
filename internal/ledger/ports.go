// Package ledger defines the persistence port the services work against.
//
// Implementations live in ledger/memory (tests, demos), storage (SQLite) and
// storage/postgres. All of them share the same semantics:
//   - lists are ordered: transactions and transfers by (date, id), everything
//     else by id, category rules by category;
//   - deleting an account or card that is still referenced fails with
//     core.ErrReferenced;
//   - inserting a second transaction for the same recurrence in the same
//     month fails with core.ErrDuplicateRecurrence;
//   - missing rows are reported as core.ErrNotFound.
package ledger

import (
	"context"

	"ledger/internal/core"
)

type (
	AccountStore interface {
		ListAccounts(ctx context.Context) ([]core.Account, error)
		GetAccount(ctx context.Context, id int64) (core.Account, error)
		InsertAccount(ctx context.Context, a core.Account) (int64, error)
		UpdateAccount(ctx context.Context, a core.Account) error
		DeleteAccount(ctx context.Context, id int64) error
	}

	CardStore interface {
		ListCards(ctx context.Context) ([]core.Card, error)
		GetCard(ctx context.Context, id int64) (core.Card, error)
		InsertCard(ctx context.Context, c core.Card) (int64, error)
		DeleteCard(ctx context.Context, id int64) error
	}

	TransactionStore interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
		// ListTransactionsBetween returns rows dated in [from, to], both inclusive.
		ListTransactionsBetween(ctx context.Context, from, to core.Date) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		InsertTransaction(ctx context.Context, t core.Transaction) (int64, error)
		// InsertTransactions stores all rows or none.
		InsertTransactions(ctx context.Context, ts []core.Transaction) ([]int64, error)
		DeleteTransactions(ctx context.Context, ids []int64) (int, error)
		UpdateTransactionStatus(ctx context.Context, ids []int64, status core.Status) (int, error)
	}

	RecurrenceStore interface {
		ListRecurrences(ctx context.Context) ([]core.Recurrence, error)
		GetRecurrence(ctx context.Context, id int64) (core.Recurrence, error)
		InsertRecurrence(ctx context.Context, r core.Recurrence) (int64, error)
		SetRecurrenceActive(ctx context.Context, id int64, active bool) error
	}

	TransferStore interface {
		ListTransfers(ctx context.Context) ([]core.Transfer, error)
		InsertTransfer(ctx context.Context, t core.Transfer) (int64, error)
		DeleteTransfer(ctx context.Context, id int64) error
	}

	GoalStore interface {
		ListGoals(ctx context.Context) ([]core.Goal, error)
		// ActiveGoal returns core.ErrNotFound when no goal is active.
		ActiveGoal(ctx context.Context) (core.Goal, error)
		// SetActiveGoal stores g as the only active goal.
		SetActiveGoal(ctx context.Context, g core.Goal) (int64, error)
	}

	CategoryRuleStore interface {
		ListCategoryRules(ctx context.Context) ([]core.CategoryRule, error)
		UpsertCategoryRule(ctx context.Context, r core.CategoryRule) error
		DeleteCategoryRule(ctx context.Context, category string) error
	}

	Store interface {
		AccountStore
		CardStore
		TransactionStore
		RecurrenceStore
		TransferStore
		GoalStore
		CategoryRuleStore
		Ping(ctx context.Context) error
		Close() error
	}
)
