package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger/memory"
)

type publishedEvent struct {
	eventType string
	ids       []int64
	month     core.YearMonth
}

// fakePublisher records events instead of talking to a broker.
type fakePublisher struct {
	events []publishedEvent
	err    error
	closed bool
}

func (f *fakePublisher) PublishLedgerEvent(_ context.Context, eventType string, ids []int64, month core.YearMonth) error {
	f.events = append(f.events, publishedEvent{eventType: eventType, ids: ids, month: month})
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type fixture struct {
	store *memory.Store
	pub   *fakePublisher
	svc   *Ledger
	bank  core.Account
	cash  core.Account
	card  core.Card
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memory.New(), pub: &fakePublisher{}}
	f.svc = NewLedger(f.store, f.pub)
	f.svc.now = func() time.Time { return time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC) }

	var err error
	if f.bank, err = f.svc.CreateAccount(ctx, core.Account{Name: "Checking", Type: core.AccountBank, InitialBalance: core.Cents(100000)}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if f.cash, err = f.svc.CreateAccount(ctx, core.Account{Name: "Wallet", Type: core.AccountCash}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if f.card, err = f.svc.CreateCard(ctx, core.Card{Name: "Visa", ClosingDay: 10, DueDay: 20, PayAccountID: f.bank.ID}); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	return f
}

func TestSeedDefaults(t *testing.T) {
	ctx := context.Background()
	svc := NewLedger(memory.New(), nil)

	n, err := svc.SeedDefaults(ctx)
	if err != nil || n != 2 {
		t.Fatalf("SeedDefaults() = %d, %v", n, err)
	}
	n, err = svc.SeedDefaults(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second SeedDefaults() = %d, %v", n, err)
	}
	accounts, _ := svc.ListAccounts(ctx)
	if len(accounts) != 2 || accounts[0].Type != core.AccountBank || accounts[1].Type != core.AccountCash {
		t.Fatalf("ListAccounts() = %+v", accounts)
	}
}

func TestCreateCardRequiresPayAccount(t *testing.T) {
	svc := NewLedger(memory.New(), nil)
	_, err := svc.CreateCard(context.Background(), core.Card{Name: "Visa", ClosingDay: 10, DueDay: 20, PayAccountID: 42})
	if !core.IsValidation(err) || !errors.Is(err, core.ErrMissingAccount) {
		t.Fatalf("CreateCard() error = %v, want missing account validation", err)
	}
}

func TestRecordTransaction(t *testing.T) {
	purchase := func(day, installments int) TransactionInput {
		return TransactionInput{
			Transaction: core.Transaction{
				Date:        core.NewDate(2025, time.March, day),
				Kind:        core.KindExpense,
				Amount:      core.Cents(10000),
				Description: "Sofa",
				Method:      core.MethodCard,
			},
			Installments: installments,
		}
	}

	tests := []struct {
		name       string
		in         func(f *fixture) TransactionInput
		wantRows   int
		wantMonths []core.YearMonth
		wantAmount []int64
		wantErr    error
	}{
		{
			name:       "card purchase on closing day stays in month",
			in:         func(f *fixture) TransactionInput { in := purchase(10, 0); in.CardID = f.card.ID; return in },
			wantRows:   1,
			wantMonths: []core.YearMonth{core.NewYearMonth(2025, time.March)},
			wantAmount: []int64{10000},
		},
		{
			name:       "card purchase after closing rolls over",
			in:         func(f *fixture) TransactionInput { in := purchase(11, 1); in.CardID = f.card.ID; return in },
			wantRows:   1,
			wantMonths: []core.YearMonth{core.NewYearMonth(2025, time.April)},
			wantAmount: []int64{10000},
		},
		{
			name:     "three installments",
			in:       func(f *fixture) TransactionInput { in := purchase(11, 3); in.CardID = f.card.ID; return in },
			wantRows: 3,
			wantMonths: []core.YearMonth{
				core.NewYearMonth(2025, time.April),
				core.NewYearMonth(2025, time.May),
				core.NewYearMonth(2025, time.June),
			},
			wantAmount: []int64{3333, 3333, 3334},
		},
		{
			name: "bank income",
			in: func(f *fixture) TransactionInput {
				return TransactionInput{Transaction: core.Transaction{
					Date: core.NewDate(2025, time.March, 1), Kind: core.KindIncome, Amount: core.Cents(500000),
					Method: core.MethodBank, AccountID: f.bank.ID, Category: "Salary",
				}}
			},
			wantRows:   1,
			wantMonths: []core.YearMonth{{}},
			wantAmount: []int64{500000},
		},
		{
			name: "installments on bank rejected",
			in: func(f *fixture) TransactionInput {
				return TransactionInput{Transaction: core.Transaction{
					Date: core.NewDate(2025, time.March, 1), Kind: core.KindExpense, Amount: core.Cents(100),
					Method: core.MethodBank, AccountID: f.bank.ID,
				}, Installments: 2}
			},
			wantErr: core.ErrInvalidInstallments,
		},
		{
			name:    "too many installments",
			in:      func(f *fixture) TransactionInput { in := purchase(1, MaxInstallments+1); in.CardID = f.card.ID; return in },
			wantErr: core.ErrInvalidInstallments,
		},
		{
			name:    "unknown card",
			in:      func(f *fixture) TransactionInput { in := purchase(1, 0); in.CardID = 999; return in },
			wantErr: core.ErrMissingCard,
		},
		{
			name: "unknown account",
			in: func(f *fixture) TransactionInput {
				return TransactionInput{Transaction: core.Transaction{
					Date: core.NewDate(2025, time.March, 1), Kind: core.KindExpense, Amount: core.Cents(100),
					Method: core.MethodCash, AccountID: 999,
				}}
			},
			wantErr: core.ErrMissingAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)

			rows, err := f.svc.RecordTransaction(ctx, tt.in(f))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !core.IsValidation(err) {
					t.Fatalf("RecordTransaction() error = %v, want %v", err, tt.wantErr)
				}
				all, _ := f.store.ListTransactions(ctx)
				if len(all) != 0 {
					t.Fatalf("rejected write left %d rows", len(all))
				}
				if len(f.pub.events) != 0 {
					t.Fatalf("rejected write published %d events", len(f.pub.events))
				}
				return
			}
			if err != nil {
				t.Fatalf("RecordTransaction() error = %v", err)
			}
			if len(rows) != tt.wantRows {
				t.Fatalf("got %d rows, want %d", len(rows), tt.wantRows)
			}
			var sum core.Money
			for i, r := range rows {
				if r.ID == 0 {
					t.Errorf("row %d has no id", i)
				}
				if r.StatementMonth != tt.wantMonths[i] {
					t.Errorf("row %d statement month = %v, want %v", i, r.StatementMonth, tt.wantMonths[i])
				}
				if r.Amount.Cents != tt.wantAmount[i] {
					t.Errorf("row %d amount = %d, want %d", i, r.Amount.Cents, tt.wantAmount[i])
				}
				sum = sum.Add(r.Amount)
			}
			if tt.wantRows > 1 {
				if sum.Cents != 10000 {
					t.Errorf("legs sum to %d, want 10000", sum.Cents)
				}
				if rows[2].Description != "Sofa (3/3)" || rows[2].InstallmentsTotal != 3 {
					t.Errorf("last leg = %+v", rows[2])
				}
			}
			if len(f.pub.events) != 1 || f.pub.events[0].eventType != EventTransactionsCreated || len(f.pub.events[0].ids) != tt.wantRows {
				t.Fatalf("events = %+v", f.pub.events)
			}
		})
	}
}

func TestRecordTransactionDefaultsStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bankRows, err := f.svc.RecordTransaction(ctx, TransactionInput{Transaction: core.Transaction{
		Date: core.NewDate(2025, time.March, 2), Kind: core.KindExpense, Amount: core.Cents(100),
		Method: core.MethodBank, AccountID: f.bank.ID,
	}})
	if err != nil {
		t.Fatalf("RecordTransaction(bank): %v", err)
	}
	cardRows, err := f.svc.RecordTransaction(ctx, TransactionInput{Transaction: core.Transaction{
		Date: core.NewDate(2025, time.March, 2), Kind: core.KindExpense, Amount: core.Cents(100),
		Method: core.MethodCard, CardID: f.card.ID,
	}})
	if err != nil {
		t.Fatalf("RecordTransaction(card): %v", err)
	}
	if bankRows[0].Status != core.StatusPaid || cardRows[0].Status != core.StatusPending {
		t.Fatalf("statuses = %s, %s", bankRows[0].Status, cardRows[0].Status)
	}
}

func TestPayStatement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	march := core.NewYearMonth(2025, time.March)

	if _, err := f.svc.PayStatement(ctx, f.card.ID, march, PaymentInput{}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("paying an empty statement = %v, want %v", err, core.ErrInvalidAmount)
	}

	for _, day := range []int{3, 9} {
		if _, err := f.svc.RecordTransaction(ctx, TransactionInput{Transaction: core.Transaction{
			Date: core.NewDate(2025, time.March, day), Kind: core.KindExpense, Amount: core.Cents(2500),
			Method: core.MethodCard, CardID: f.card.ID,
		}}); err != nil {
			t.Fatalf("RecordTransaction: %v", err)
		}
	}

	pay, err := f.svc.PayStatement(ctx, f.card.ID, march, PaymentInput{})
	if err != nil {
		t.Fatalf("PayStatement() error = %v", err)
	}
	if pay.Amount.Cents != 5000 || pay.Method != core.MethodCardPayment || pay.AccountID != f.bank.ID {
		t.Fatalf("payment = %+v", pay)
	}
	if pay.Date != core.NewDate(2025, time.March, 15) || pay.Status != core.StatusPaid {
		t.Fatalf("payment defaults = %s %s", pay.Date, pay.Status)
	}
	if pay.Description != "Statement payment 2025-03" {
		t.Fatalf("description = %q", pay.Description)
	}

	partial, err := f.svc.PayStatement(ctx, f.card.ID, march, PaymentInput{Amount: core.Cents(1000), AccountID: f.cash.ID})
	if err != nil || partial.Amount.Cents != 1000 || partial.AccountID != f.cash.ID {
		t.Fatalf("partial payment = %+v, %v", partial, err)
	}

	if _, err := f.svc.PayStatement(ctx, 999, march, PaymentInput{}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown card = %v, want %v", err, core.ErrNotFound)
	}
}

func TestStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rows, err := f.svc.RecordTransaction(ctx, TransactionInput{Transaction: core.Transaction{
		Date: core.NewDate(2025, time.March, 2), Kind: core.KindExpense, Amount: core.Cents(100),
		Status: core.StatusPending, Method: core.MethodBank, AccountID: f.bank.ID,
	}})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	id := rows[0].ID

	if _, err := f.svc.SetTransactionStatus(ctx, []int64{id}, "DONE"); !errors.Is(err, core.ErrInvalidStatus) {
		t.Fatalf("bad status = %v", err)
	}
	n, err := f.svc.SetTransactionStatus(ctx, []int64{id}, core.StatusPaid)
	if err != nil || n != 1 {
		t.Fatalf("SetTransactionStatus() = %d, %v", n, err)
	}
	got, _ := f.store.GetTransaction(ctx, id)
	if got.Status != core.StatusPaid {
		t.Fatalf("status = %s", got.Status)
	}

	if err := f.svc.DeleteTransaction(ctx, id); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if err := f.svc.DeleteTransaction(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second DeleteTransaction = %v, want %v", err, core.ErrNotFound)
	}

	last := f.pub.events[len(f.pub.events)-1]
	if last.eventType != EventTransactionsDeleted {
		t.Fatalf("last event = %+v", last)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	rows, err := f.svc.RecordTransaction(ctx, TransactionInput{Transaction: core.Transaction{
		Date: core.NewDate(2025, time.March, 2), Kind: core.KindIncome, Amount: core.Cents(100),
		Method: core.MethodCash, AccountID: f.cash.ID,
	}})
	if err != nil || len(rows) != 1 {
		t.Fatalf("RecordTransaction() = %v, %v", rows, err)
	}
}

func TestCreateRecurrenceAndTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.CreateRecurrence(ctx, core.Recurrence{
		Name: "Streaming", Kind: core.KindIncome, Amount: core.Cents(1500),
		Method: core.MethodCard, CardID: f.card.ID, DayOfMonth: 12,
	})
	if err != nil {
		t.Fatalf("CreateRecurrence: %v", err)
	}
	if !r.Active || r.Kind != core.KindExpense {
		t.Fatalf("recurrence = %+v", r)
	}
	if _, err := f.svc.CreateRecurrence(ctx, core.Recurrence{
		Name: "Rent", Kind: core.KindExpense, Amount: core.Cents(1500),
		Method: core.MethodBank, AccountID: f.bank.ID, DayOfMonth: 31,
	}); !errors.Is(err, core.ErrInvalidDay) {
		t.Fatalf("day 31 = %v, want %v", err, core.ErrInvalidDay)
	}

	tr, err := f.svc.CreateTransfer(ctx, core.Transfer{
		Date: core.NewDate(2025, time.March, 3), Amount: core.Cents(2000),
		FromAccountID: f.bank.ID, ToAccountID: f.cash.ID,
	})
	if err != nil || tr.Status != core.StatusPaid {
		t.Fatalf("CreateTransfer() = %+v, %v", tr, err)
	}
	if _, err := f.svc.CreateTransfer(ctx, core.Transfer{
		Date: core.NewDate(2025, time.March, 3), Amount: core.Cents(2000),
		FromAccountID: f.bank.ID, ToAccountID: 999,
	}); !errors.Is(err, core.ErrMissingAccount) {
		t.Fatalf("transfer to unknown account = %v", err)
	}

	if err := f.svc.DeleteAccount(ctx, f.cash.ID); !errors.Is(err, core.ErrReferenced) {
		t.Fatalf("DeleteAccount(referenced) = %v, want %v", err, core.ErrReferenced)
	}
}

func TestGoalsAndRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.SetGoal(ctx, core.Goal{
		Name: "Trip", TargetAmount: core.Cents(100),
		StartDate: core.NewDate(2025, time.June, 1), EndDate: core.NewDate(2025, time.January, 1),
	}); !errors.Is(err, core.ErrInvalidGoalRange) {
		t.Fatalf("inverted range = %v", err)
	}
	g, err := f.svc.SetGoal(ctx, core.Goal{
		Name: "Trip", TargetAmount: core.Cents(100),
		StartDate: core.NewDate(2025, time.January, 1), EndDate: core.NewDate(2025, time.June, 1),
	})
	if err != nil || !g.Active || g.ID == 0 {
		t.Fatalf("SetGoal() = %+v, %v", g, err)
	}

	rule, err := f.svc.UpsertCategoryRule(ctx, core.CategoryRule{Category: "  Dining ", Class: core.ClassDiscretionary})
	if err != nil || rule.Category != "dining" {
		t.Fatalf("UpsertCategoryRule() = %+v, %v", rule, err)
	}
	if err := f.svc.DeleteCategoryRule(ctx, "DINING"); err != nil {
		t.Fatalf("DeleteCategoryRule: %v", err)
	}
}

func TestLedgerClose(t *testing.T) {
	t.Run("nil components", func(t *testing.T) {
		svc := &Ledger{}
		if err := svc.Close(); err != nil {
			t.Fatalf("Close should not return error with nil components: %v", err)
		}
	})
	t.Run("closes publisher", func(t *testing.T) {
		pub := &fakePublisher{}
		svc := NewLedger(memory.New(), pub)
		if err := svc.Close(); err != nil || !pub.closed {
			t.Fatalf("Close() = %v, closed = %v", err, pub.closed)
		}
	})
	t.Run("closes store once", func(t *testing.T) {
		store := &countingStore{Store: memory.New()}
		svc := NewLedger(store, nil)
		if err := svc.Close(); err != nil {
			t.Fatalf("Close() = %v", err)
		}
		if store.closes != 1 {
			t.Errorf("store closed %d times, want 1", store.closes)
		}
	})
}

type countingStore struct {
	*memory.Store
	closes int
}

func (s *countingStore) Close() error {
	s.closes++
	return nil
}
