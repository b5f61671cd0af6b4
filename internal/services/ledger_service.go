package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Event types published after successful writes.
const (
	EventTransactionsCreated     = "transactions.created"
	EventTransactionsDeleted     = "transactions.deleted"
	EventTransactionsStatus      = "transactions.status_changed"
	EventRecurrencesMaterialized = "recurrences.materialized"
)

// MaxInstallments bounds a single split purchase.
const MaxInstallments = 72

// PaymentCategory is the category statement payments are recorded under.
const PaymentCategory = "Card"

// EventPublisher announces ledger changes to other processes.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, eventType string, transactionIDs []int64, month core.YearMonth) error
	Close() error
}

// Ledger validates and applies every write to the store. A rejected
// operation never leaves a partial write behind.
type Ledger struct {
	store     ledger.Store
	publisher EventPublisher
	now       func() time.Time
}

// NewLedger wires the service. publisher may be nil.
func NewLedger(store ledger.Store, publisher EventPublisher) *Ledger {
	return &Ledger{store: store, publisher: publisher, now: time.Now}
}

func (l *Ledger) publish(ctx context.Context, eventType string, ids []int64, month core.YearMonth) {
	if l.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping event", "type", eventType)
		return
	}
	if err := l.publisher.PublishLedgerEvent(ctx, eventType, ids, month); err != nil {
		// The write already succeeded; consumers only mirror it.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", eventType,
			"transaction_ids", ids,
			"error", err)
	}
}

// requireExists converts a missing referenced row into a validation error.
func requireExists(err error, field string, missing error) error {
	if errors.Is(err, core.ErrNotFound) {
		return core.Invalid(field, missing)
	}
	return err
}

// SeedDefaults creates a bank account and a wallet on an empty ledger.
func (l *Ledger) SeedDefaults(ctx context.Context) (int, error) {
	accounts, err := l.store.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) > 0 {
		return 0, nil
	}
	defaults := []core.Account{
		{Name: "Main account", Type: core.AccountBank},
		{Name: "Wallet", Type: core.AccountCash},
	}
	for _, a := range defaults {
		if _, err := l.store.InsertAccount(ctx, a); err != nil {
			return 0, fmt.Errorf("seed account %q: %w", a.Name, err)
		}
	}
	slog.InfoContext(ctx, "Seeded default accounts", "count", len(defaults))
	return len(defaults), nil
}

// Accounts

func (l *Ledger) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return l.store.ListAccounts(ctx)
}

func (l *Ledger) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	id, err := l.store.InsertAccount(ctx, a)
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	a.ID = id
	slog.InfoContext(ctx, "Account created", "account_id", id, "type", a.Type)
	return a, nil
}

func (l *Ledger) UpdateAccount(ctx context.Context, a core.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return l.store.UpdateAccount(ctx, a)
}

func (l *Ledger) DeleteAccount(ctx context.Context, id int64) error {
	if err := l.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Account deleted", "account_id", id)
	return nil
}

// Cards

func (l *Ledger) ListCards(ctx context.Context) ([]core.Card, error) {
	return l.store.ListCards(ctx)
}

func (l *Ledger) CreateCard(ctx context.Context, c core.Card) (core.Card, error) {
	if err := c.Validate(); err != nil {
		return core.Card{}, err
	}
	if _, err := l.store.GetAccount(ctx, c.PayAccountID); err != nil {
		return core.Card{}, requireExists(err, "pay_account_id", core.ErrMissingAccount)
	}
	id, err := l.store.InsertCard(ctx, c)
	if err != nil {
		return core.Card{}, fmt.Errorf("insert card: %w", err)
	}
	c.ID = id
	slog.InfoContext(ctx, "Card created", "card_id", id, "closing_day", c.ClosingDay)
	return c, nil
}

func (l *Ledger) DeleteCard(ctx context.Context, id int64) error {
	return l.store.DeleteCard(ctx, id)
}

// Transactions

// TransactionInput is a transaction to record. Installments > 1 splits a
// card purchase into that many monthly legs.
type TransactionInput struct {
	core.Transaction
	Installments int `json:"installments,omitempty"`
}

// ListTransactions returns every row, or only those dated in month when it
// is set.
func (l *Ledger) ListTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error) {
	if month.IsZero() {
		return l.store.ListTransactions(ctx)
	}
	return l.store.ListTransactionsBetween(ctx, month.FirstDay(), month.LastDay())
}

// RecordTransaction stores a transaction. Card purchases get their
// statement month from the card's closing day.
func (l *Ledger) RecordTransaction(ctx context.Context, in TransactionInput) ([]core.Transaction, error) {
	t := in.Transaction
	t.ID = 0
	t.RecurrenceID = 0
	t.InstallmentNo, t.InstallmentsTotal = 0, 0
	if t.Status == "" {
		t.Status = core.StatusPaid
		if t.Method == core.MethodCard {
			t.Status = core.StatusPending
		}
	}

	if in.Installments < 0 || in.Installments > MaxInstallments {
		return nil, core.Invalid("installments", core.ErrInvalidInstallments)
	}
	if in.Installments > 1 && t.Method != core.MethodCard {
		return nil, core.Invalid("installments", core.ErrInvalidInstallments)
	}

	if err := l.checkReferences(ctx, &t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	rows := []core.Transaction{t}
	if in.Installments > 1 {
		var err error
		if rows, err = core.ExpandInstallments(t, in.Installments); err != nil {
			return nil, err
		}
		for _, r := range rows {
			if err := r.Validate(); err != nil {
				return nil, err
			}
		}
	}

	ids, err := l.store.InsertTransactions(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("insert transactions: %w", err)
	}
	for i := range rows {
		rows[i].ID = ids[i]
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"transaction_ids", ids,
		"method", t.Method,
		"kind", t.Kind,
		"amount", t.Amount.String(),
		"installments", len(rows))
	l.publish(ctx, EventTransactionsCreated, ids, t.Date.YearMonth())
	return rows, nil
}

// checkReferences verifies the referenced account and card exist and fills
// in the statement month of card purchases.
func (l *Ledger) checkReferences(ctx context.Context, t *core.Transaction) error {
	if t.AccountID != 0 {
		if _, err := l.store.GetAccount(ctx, t.AccountID); err != nil {
			return requireExists(err, "account_id", core.ErrMissingAccount)
		}
	}
	if t.CardID != 0 {
		card, err := l.store.GetCard(ctx, t.CardID)
		if err != nil {
			return requireExists(err, "card_id", core.ErrMissingCard)
		}
		if t.Method == core.MethodCard && t.Date.Validate() == nil {
			t.StatementMonth = core.ResolveStatementMonth(t.Date, card.ClosingDay)
		}
	}
	return nil
}

// PaymentInput describes a statement payment. Zero values fall back to the
// statement total, the card's pay account and today.
type PaymentInput struct {
	Date      core.Date   `json:"date"`
	Amount    core.Money  `json:"amount"`
	AccountID int64       `json:"account_id,omitempty"`
	Status    core.Status `json:"status,omitempty"`
}

// PayStatement records a CARD_PAYMENT for the card's statement of month.
func (l *Ledger) PayStatement(ctx context.Context, cardID int64, month core.YearMonth, in PaymentInput) (core.Transaction, error) {
	if month.IsZero() {
		return core.Transaction{}, core.Invalid("month", core.ErrMissingStatement)
	}
	card, err := l.store.GetCard(ctx, cardID)
	if err != nil {
		return core.Transaction{}, err
	}

	amount := in.Amount
	if amount.IsZero() {
		txs, err := l.store.ListTransactions(ctx)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("list transactions: %w", err)
		}
		amount = core.StatementTotal(cardID, month, txs)
	}
	if !amount.IsPositive() {
		return core.Transaction{}, core.Invalid("amount", core.ErrInvalidAmount)
	}

	t := core.Transaction{
		Date:           in.Date,
		Kind:           core.KindExpense,
		Amount:         amount,
		Category:       PaymentCategory,
		Description:    "Statement payment " + month.String(),
		Status:         in.Status,
		Method:         core.MethodCardPayment,
		AccountID:      in.AccountID,
		CardID:         cardID,
		StatementMonth: month,
	}
	if t.Date.IsZero() {
		t.Date = core.DateOf(l.now())
	}
	if t.AccountID == 0 {
		t.AccountID = card.PayAccountID
	}
	if t.Status == "" {
		t.Status = core.StatusPaid
	}

	rows, err := l.RecordTransaction(ctx, TransactionInput{Transaction: t})
	if err != nil {
		return core.Transaction{}, err
	}
	return rows[0], nil
}

func (l *Ledger) SetTransactionStatus(ctx context.Context, ids []int64, status core.Status) (int, error) {
	if !status.Valid() {
		return 0, core.Invalid("status", core.ErrInvalidStatus)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := l.store.UpdateTransactionStatus(ctx, ids, status)
	if err != nil {
		return 0, fmt.Errorf("update status: %w", err)
	}
	slog.InfoContext(ctx, "Transaction status updated", "transaction_ids", ids, "status", status, "updated", n)
	l.publish(ctx, EventTransactionsStatus, ids, core.YearMonth{})
	return n, nil
}

func (l *Ledger) DeleteTransaction(ctx context.Context, id int64) error {
	n, err := l.DeleteTransactions(ctx, []int64{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (l *Ledger) DeleteTransactions(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := l.store.DeleteTransactions(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	slog.InfoContext(ctx, "Transactions deleted", "transaction_ids", ids, "deleted", n)
	if n > 0 {
		l.publish(ctx, EventTransactionsDeleted, ids, core.YearMonth{})
	}
	return n, nil
}

// Recurrences

func (l *Ledger) ListRecurrences(ctx context.Context) ([]core.Recurrence, error) {
	return l.store.ListRecurrences(ctx)
}

// CreateRecurrence stores an active template.
func (l *Ledger) CreateRecurrence(ctx context.Context, r core.Recurrence) (core.Recurrence, error) {
	r.Active = true
	if r.Method == core.MethodCard {
		r.Kind = core.KindExpense
	}
	if err := r.Validate(); err != nil {
		return core.Recurrence{}, err
	}
	if r.AccountID != 0 {
		if _, err := l.store.GetAccount(ctx, r.AccountID); err != nil {
			return core.Recurrence{}, requireExists(err, "account_id", core.ErrMissingAccount)
		}
	}
	if r.CardID != 0 {
		if _, err := l.store.GetCard(ctx, r.CardID); err != nil {
			return core.Recurrence{}, requireExists(err, "card_id", core.ErrMissingCard)
		}
	}
	id, err := l.store.InsertRecurrence(ctx, r)
	if err != nil {
		return core.Recurrence{}, fmt.Errorf("insert recurrence: %w", err)
	}
	r.ID = id
	slog.InfoContext(ctx, "Recurrence created", "recurrence_id", id, "day_of_month", r.DayOfMonth)
	return r, nil
}

func (l *Ledger) SetRecurrenceActive(ctx context.Context, id int64, active bool) error {
	return l.store.SetRecurrenceActive(ctx, id, active)
}

// Transfers

func (l *Ledger) ListTransfers(ctx context.Context) ([]core.Transfer, error) {
	return l.store.ListTransfers(ctx)
}

func (l *Ledger) CreateTransfer(ctx context.Context, t core.Transfer) (core.Transfer, error) {
	if t.Status == "" {
		t.Status = core.StatusPaid
	}
	if err := t.Validate(); err != nil {
		return core.Transfer{}, err
	}
	if _, err := l.store.GetAccount(ctx, t.FromAccountID); err != nil {
		return core.Transfer{}, requireExists(err, "from_account_id", core.ErrMissingAccount)
	}
	if _, err := l.store.GetAccount(ctx, t.ToAccountID); err != nil {
		return core.Transfer{}, requireExists(err, "to_account_id", core.ErrMissingAccount)
	}
	id, err := l.store.InsertTransfer(ctx, t)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("insert transfer: %w", err)
	}
	t.ID = id
	slog.InfoContext(ctx, "Transfer created", "transfer_id", id, "amount", t.Amount.String())
	return t, nil
}

func (l *Ledger) DeleteTransfer(ctx context.Context, id int64) error {
	return l.store.DeleteTransfer(ctx, id)
}

// Goals

func (l *Ledger) ListGoals(ctx context.Context) ([]core.Goal, error) {
	return l.store.ListGoals(ctx)
}

func (l *Ledger) ActiveGoal(ctx context.Context) (core.Goal, error) {
	return l.store.ActiveGoal(ctx)
}

// SetGoal stores g as the active goal, deactivating any previous one.
func (l *Ledger) SetGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	id, err := l.store.SetActiveGoal(ctx, g)
	if err != nil {
		return core.Goal{}, fmt.Errorf("set goal: %w", err)
	}
	g.ID, g.Active = id, true
	slog.InfoContext(ctx, "Goal set", "goal_id", id, "target", g.TargetAmount.String())
	return g, nil
}

// Category rules

func (l *Ledger) ListCategoryRules(ctx context.Context) ([]core.CategoryRule, error) {
	return l.store.ListCategoryRules(ctx)
}

func (l *Ledger) UpsertCategoryRule(ctx context.Context, r core.CategoryRule) (core.CategoryRule, error) {
	if err := r.Validate(); err != nil {
		return core.CategoryRule{}, err
	}
	r.Category = core.NormalizeCategory(r.Category)
	if err := l.store.UpsertCategoryRule(ctx, r); err != nil {
		return core.CategoryRule{}, err
	}
	return r, nil
}

func (l *Ledger) DeleteCategoryRule(ctx context.Context, category string) error {
	return l.store.DeleteCategoryRule(ctx, category)
}

// Close closes the store and the publisher.
func (l *Ledger) Close() error {
	var errs []error
	if l.store != nil {
		if err := l.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if l.publisher != nil {
		if err := l.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}
