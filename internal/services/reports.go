package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// DefaultProjectionDays is used when neither the caller nor config set a horizon.
const DefaultProjectionDays = 60

// Snapshot is the ledger state every derived view is computed from.
type Snapshot struct {
	Accounts     []core.Account
	Cards        []core.Card
	Transactions []core.Transaction
	Transfers    []core.Transfer
	Rules        []core.CategoryRule
}

// Reports derives balances, statements, summaries, projections and goal
// plans. Nothing is cached: every call reloads the ledger.
type Reports struct {
	store          ledger.Store
	projectionDays int
	now            func() time.Time
}

// NewReports creates the reports service. projectionDays <= 0 selects
// DefaultProjectionDays.
func NewReports(store ledger.Store, projectionDays int) *Reports {
	if projectionDays <= 0 {
		projectionDays = DefaultProjectionDays
	}
	return &Reports{store: store, projectionDays: projectionDays, now: time.Now}
}

// Snapshot loads the whole ledger, reading each table concurrently.
func (r *Reports) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Accounts, err = r.store.ListAccounts(gctx)
		return wrap("list accounts", err)
	})
	g.Go(func() (err error) {
		snap.Cards, err = r.store.ListCards(gctx)
		return wrap("list cards", err)
	})
	g.Go(func() (err error) {
		snap.Transactions, err = r.store.ListTransactions(gctx)
		return wrap("list transactions", err)
	})
	g.Go(func() (err error) {
		snap.Transfers, err = r.store.ListTransfers(gctx)
		return wrap("list transfers", err)
	})
	g.Go(func() (err error) {
		snap.Rules, err = r.store.ListCategoryRules(gctx)
		return wrap("list category rules", err)
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// BalancesView lists every account balance and their total.
type BalancesView struct {
	Accounts []core.AccountBalanceView `json:"accounts"`
	Total    core.Money                `json:"total"`
}

func (r *Reports) Balances(ctx context.Context) (BalancesView, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return BalancesView{}, err
	}
	views := core.Balances(snap.Accounts, snap.Transactions, snap.Transfers)
	return BalancesView{Accounts: views, Total: core.TotalBalance(views)}, nil
}

// Statement returns the items and total of card's statement for month.
func (r *Reports) Statement(ctx context.Context, cardID int64, month core.YearMonth) (core.Statement, error) {
	if month.IsZero() {
		return core.Statement{}, core.Invalid("month", core.ErrInvalidMonth)
	}
	if _, err := r.store.GetCard(ctx, cardID); err != nil {
		return core.Statement{}, err
	}
	txs, err := r.store.ListTransactions(ctx)
	if err != nil {
		return core.Statement{}, fmt.Errorf("list transactions: %w", err)
	}
	return core.BuildStatement(cardID, month, txs), nil
}

// StatementMonths lists the months card has purchases on, ascending.
func (r *Reports) StatementMonths(ctx context.Context, cardID int64) ([]core.YearMonth, error) {
	if _, err := r.store.GetCard(ctx, cardID); err != nil {
		return nil, err
	}
	txs, err := r.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return core.StatementMonths(cardID, txs), nil
}

// MonthlySummary summarizes month, defaulting to the current month.
func (r *Reports) MonthlySummary(ctx context.Context, month core.YearMonth) (core.MonthlySummary, error) {
	if month.IsZero() {
		month = core.DateOf(r.now()).YearMonth()
	}
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return core.MonthlySummary{}, err
	}
	summary := core.SummarizeMonth(month, snap.Transactions, snap.Rules)

	accounts := make(map[int64]string, len(snap.Accounts))
	for _, a := range snap.Accounts {
		accounts[a.ID] = a.Name
	}
	cards := make(map[int64]string, len(snap.Cards))
	for _, c := range snap.Cards {
		cards[c.ID] = c.Name
	}
	for i := range summary.ByAccount {
		summary.ByAccount[i].Name = accounts[summary.ByAccount[i].ID]
	}
	for i := range summary.ByCard {
		summary.ByCard[i].Name = cards[summary.ByCard[i].ID]
	}
	return summary, nil
}

// ProjectionView is a forward projection and the inputs it started from.
type ProjectionView struct {
	Today   core.Date              `json:"today"`
	Days    int                    `json:"days"`
	Initial core.Money             `json:"initial"`
	Points  []core.ProjectionPoint `json:"points"`
	Final   core.Money             `json:"final"`
}

// Projection walks pending rows from today. A nil initial starts from the
// current total balance; days <= 0 uses the configured horizon.
func (r *Reports) Projection(ctx context.Context, initial *core.Money, days int) (ProjectionView, error) {
	if days <= 0 {
		days = r.projectionDays
	}
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return ProjectionView{}, err
	}

	view := ProjectionView{Today: core.DateOf(r.now()), Days: days}
	if initial != nil {
		view.Initial = *initial
	} else {
		view.Initial = core.TotalBalance(core.Balances(snap.Accounts, snap.Transactions, snap.Transfers))
	}
	view.Points = core.ProjectBalance(view.Initial, snap.Transactions, view.Today, days)
	view.Final = view.Initial
	if n := len(view.Points); n > 0 {
		view.Final = view.Points[n-1].Balance
	}
	return view, nil
}

// GoalPlan reports progress of the active goal.
func (r *Reports) GoalPlan(ctx context.Context) (core.GoalPlan, error) {
	goal, err := r.store.ActiveGoal(ctx)
	if err != nil {
		return core.GoalPlan{}, err
	}
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return core.GoalPlan{}, err
	}
	return core.PlanGoal(goal, snap.Transactions, snap.Rules), nil
}
