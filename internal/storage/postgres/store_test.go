package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

func TestTransactionRowConversion(t *testing.T) {
	tests := []struct {
		name string
		tx   core.Transaction
	}{
		{
			name: "bank row",
			tx: core.Transaction{
				ID: 3, Date: core.NewDate(2025, time.March, 1), Kind: core.KindIncome, Amount: core.Cents(1999),
				Status: core.StatusPaid, Method: core.MethodBank, AccountID: 2, Category: "Salary",
			},
		},
		{
			name: "installment leg",
			tx: core.Transaction{
				ID: 4, Date: core.NewDate(2025, time.March, 11), Kind: core.KindExpense, Amount: core.Cents(3334),
				Status: core.StatusPending, Method: core.MethodCard, CardID: 5,
				StatementMonth: core.NewYearMonth(2025, time.June), InstallmentsTotal: 3, InstallmentNo: 3,
			},
		},
		{
			name: "materialized row",
			tx: core.Transaction{
				ID: 5, Date: core.NewDate(2025, time.April, 5), Kind: core.KindExpense, Amount: core.Cents(100000),
				Status: core.StatusPaid, Method: core.MethodCash, AccountID: 1, RecurrenceID: 9,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := toTransactionRow(tt.tx)
			if tt.tx.StatementMonth.IsZero() != (row.StatementMonth == nil) {
				t.Fatalf("statement month nullability mismatch: %+v", row)
			}
			if tt.tx.InstallmentsTotal == 0 && row.InstallmentsTotal != nil {
				t.Fatalf("installments should be NULL: %+v", row)
			}
			got, err := row.toCore()
			if err != nil {
				t.Fatalf("toCore() error = %v", err)
			}
			if got != tt.tx {
				t.Fatalf("toCore() = %+v, want %+v", got, tt.tx)
			}
		})
	}
}

func TestGoalRowConversion(t *testing.T) {
	g := core.Goal{ID: 1, Name: "House", TargetAmount: core.Cents(1000), StartDate: core.NewDate(2025, 1, 1),
		EndDate: core.NewDate(2026, 1, 1), StartAmount: core.Cents(10), Active: true}
	got, err := toGoalRow(g).toCore()
	if err != nil || got != g {
		t.Fatalf("round trip = %+v, %v", got, err)
	}
	if _, err := (goalRow{StartDate: "nope", EndDate: "2025-01-01"}).toCore(); err == nil {
		t.Fatalf("expected error for bad stored date")
	}
}

// TestPostgresStore runs against a real database when LEDGER_TEST_POSTGRES_DSN is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	bank, err := s.InsertAccount(ctx, core.Account{Name: "Checking", Type: core.AccountBank})
	if err != nil {
		t.Fatalf("InsertAccount: %v", err)
	}
	rid, err := s.InsertRecurrence(ctx, core.Recurrence{
		Name: "Rent", Kind: core.KindExpense, Amount: core.Cents(100), Method: core.MethodBank,
		AccountID: bank, DayOfMonth: 5, Active: true,
	})
	if err != nil {
		t.Fatalf("InsertRecurrence: %v", err)
	}
	row := core.Transaction{
		Date: core.NewDate(2031, time.March, 5), Kind: core.KindExpense, Amount: core.Cents(100),
		Status: core.StatusPaid, Method: core.MethodBank, AccountID: bank, RecurrenceID: rid,
	}
	if _, err := s.InsertTransaction(ctx, row); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	if _, err := s.InsertTransaction(ctx, row); !errors.Is(err, core.ErrDuplicateRecurrence) {
		t.Fatalf("duplicate = %v, want %v", err, core.ErrDuplicateRecurrence)
	}
	if err := s.DeleteAccount(ctx, bank); !errors.Is(err, core.ErrReferenced) {
		t.Fatalf("DeleteAccount = %v, want %v", err, core.ErrReferenced)
	}
}
