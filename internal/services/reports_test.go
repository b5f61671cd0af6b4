package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledger/internal/core"
)

func newReports(f *fixture) *Reports {
	r := NewReports(f.store, 0)
	r.now = func() time.Time { return time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC) }
	return r
}

func record(t *testing.T, f *fixture, tx core.Transaction) core.Transaction {
	t.Helper()
	rows, err := f.svc.RecordTransaction(context.Background(), TransactionInput{Transaction: tx})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	return rows[0]
}

func TestReportsBalances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := newReports(f)

	record(t, f, core.Transaction{Date: core.NewDate(2025, time.March, 1), Kind: core.KindIncome,
		Amount: core.Cents(50000), Method: core.MethodBank, AccountID: f.bank.ID})
	pending := record(t, f, core.Transaction{Date: core.NewDate(2025, time.March, 2), Kind: core.KindExpense,
		Amount: core.Cents(7000), Status: core.StatusPending, Method: core.MethodBank, AccountID: f.bank.ID})
	record(t, f, core.Transaction{Date: core.NewDate(2025, time.March, 3), Kind: core.KindExpense,
		Amount: core.Cents(9900), Method: core.MethodCard, CardID: f.card.ID})
	if _, err := f.svc.CreateTransfer(ctx, core.Transfer{Date: core.NewDate(2025, time.March, 4),
		Amount: core.Cents(2000), FromAccountID: f.bank.ID, ToAccountID: f.cash.ID}); err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}

	view, err := r.Balances(ctx)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	// 1000.00 + 500.00 - 20.00; the card purchase and the pending row do not count.
	if got := view.Accounts[0].Balance.Cents; got != 148000 {
		t.Fatalf("bank balance = %d, want 148000", got)
	}
	if got := view.Accounts[1].Balance.Cents; got != 2000 {
		t.Fatalf("wallet balance = %d, want 2000", got)
	}
	if view.Total.Cents != 150000 {
		t.Fatalf("total = %d", view.Total.Cents)
	}

	if _, err := f.svc.SetTransactionStatus(ctx, []int64{pending.ID}, core.StatusPaid); err != nil {
		t.Fatalf("SetTransactionStatus: %v", err)
	}
	view, _ = r.Balances(ctx)
	if got := view.Accounts[0].Balance.Cents; got != 141000 {
		t.Fatalf("bank balance after paying = %d, want 141000", got)
	}
}

func TestReportsStatement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := newReports(f)

	for _, day := range []int{2, 12} {
		record(t, f, core.Transaction{Date: core.NewDate(2025, time.March, day), Kind: core.KindExpense,
			Amount: core.Cents(1000), Method: core.MethodCard, CardID: f.card.ID})
	}

	st, err := r.Statement(ctx, f.card.ID, core.NewYearMonth(2025, time.March))
	if err != nil || st.Total.Cents != 1000 || len(st.Items) != 1 {
		t.Fatalf("Statement() = %+v, %v", st, err)
	}
	months, err := r.StatementMonths(ctx, f.card.ID)
	if err != nil || len(months) != 2 || months[1] != core.NewYearMonth(2025, time.April) {
		t.Fatalf("StatementMonths() = %v, %v", months, err)
	}
	if _, err := r.Statement(ctx, 999, core.NewYearMonth(2025, time.March)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Statement(unknown card) = %v", err)
	}
}

func TestReportsProjection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := newReports(f)

	record(t, f, core.Transaction{Date: core.NewDate(2025, time.March, 20), Kind: core.KindExpense,
		Amount: core.Cents(5000), Status: core.StatusPending, Method: core.MethodBank, AccountID: f.bank.ID})
	record(t, f, core.Transaction{Date: core.NewDate(2025, time.March, 20), Kind: core.KindIncome,
		Amount: core.Cents(20000), Status: core.StatusPending, Method: core.MethodCash, AccountID: f.cash.ID})
	record(t, f, core.Transaction{Date: core.NewDate(2025, time.June, 20), Kind: core.KindIncome,
		Amount: core.Cents(1), Status: core.StatusPending, Method: core.MethodCash, AccountID: f.cash.ID})

	view, err := r.Projection(ctx, nil, 0)
	if err != nil {
		t.Fatalf("Projection() error = %v", err)
	}
	if view.Days != DefaultProjectionDays || view.Initial.Cents != 100000 {
		t.Fatalf("defaults = %d days, initial %d", view.Days, view.Initial.Cents)
	}
	if len(view.Points) != 2 || view.Points[0].Amount.Cents != 5000 || view.Final.Cents != 115000 {
		t.Fatalf("points = %+v, final %d", view.Points, view.Final.Cents)
	}

	initial := core.Cents(0)
	view, err = r.Projection(ctx, &initial, 120)
	if err != nil || len(view.Points) != 3 || view.Final.Cents != 15001 {
		t.Fatalf("Projection(0, 120) = %+v, %v", view, err)
	}
}

func TestReportsSummaryAndGoal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := newReports(f)

	if _, err := r.GoalPlan(ctx); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("GoalPlan(no goal) = %v, want %v", err, core.ErrNotFound)
	}

	record(t, f, core.Transaction{Date: core.NewDate(2025, time.March, 1), Kind: core.KindIncome,
		Amount: core.Cents(30000), Method: core.MethodBank, AccountID: f.bank.ID})
	record(t, f, core.Transaction{Date: core.NewDate(2025, time.March, 2), Kind: core.KindExpense,
		Amount: core.Cents(10000), Method: core.MethodBank, AccountID: f.bank.ID, Category: "Dining"})

	sum, err := r.MonthlySummary(ctx, core.YearMonth{})
	if err != nil || sum.Month != core.NewYearMonth(2025, time.March) || sum.Savings.Cents != 20000 {
		t.Fatalf("MonthlySummary() = %+v, %v", sum, err)
	}
	if len(sum.ByAccount) != 1 || sum.ByAccount[0].Name != "Checking" || sum.ByAccount[0].Amount.Cents != 10000 {
		t.Fatalf("ByAccount = %+v", sum.ByAccount)
	}
	if len(sum.ByCard) != 0 {
		t.Fatalf("ByCard = %+v", sum.ByCard)
	}

	if _, err := f.svc.SetGoal(ctx, core.Goal{Name: "Trip", TargetAmount: core.Cents(40000),
		StartDate: core.NewDate(2025, time.March, 1), EndDate: core.NewDate(2025, time.May, 1)}); err != nil {
		t.Fatalf("SetGoal: %v", err)
	}
	if _, err := f.svc.UpsertCategoryRule(ctx, core.CategoryRule{Category: "dining", Class: core.ClassDiscretionary}); err != nil {
		t.Fatalf("UpsertCategoryRule: %v", err)
	}
	plan, err := r.GoalPlan(ctx)
	if err != nil {
		t.Fatalf("GoalPlan() error = %v", err)
	}
	if plan.CurrentAmount.Cents != 20000 || plan.Progress != 0.5 || plan.DiscretionarySpend.Cents != 10000 {
		t.Fatalf("plan = %+v", plan)
	}
}
