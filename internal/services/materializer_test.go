package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger/memory"
)

func seedRecurrences(t *testing.T, f *fixture) (rent, salary, streaming, paused core.Recurrence) {
	t.Helper()
	ctx := context.Background()
	mk := func(r core.Recurrence) core.Recurrence {
		out, err := f.svc.CreateRecurrence(ctx, r)
		if err != nil {
			t.Fatalf("CreateRecurrence(%s): %v", r.Name, err)
		}
		return out
	}
	rent = mk(core.Recurrence{Name: "Rent", Kind: core.KindExpense, Amount: core.Cents(120000),
		Method: core.MethodBank, AccountID: f.bank.ID, DayOfMonth: 5, Category: "Housing"})
	salary = mk(core.Recurrence{Name: "Salary", Kind: core.KindIncome, Amount: core.Cents(500000),
		Method: core.MethodBank, AccountID: f.bank.ID, DayOfMonth: 1, Description: "Monthly salary"})
	streaming = mk(core.Recurrence{Name: "Streaming", Kind: core.KindExpense, Amount: core.Cents(1599),
		Method: core.MethodCard, CardID: f.card.ID, DayOfMonth: 20})
	paused = mk(core.Recurrence{Name: "Gym", Kind: core.KindExpense, Amount: core.Cents(5000),
		Method: core.MethodCash, AccountID: f.cash.ID, DayOfMonth: 3})
	if err := f.svc.SetRecurrenceActive(ctx, paused.ID, false); err != nil {
		t.Fatalf("SetRecurrenceActive: %v", err)
	}
	return rent, salary, streaming, paused
}

func TestMaterializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rent, salary, streaming, paused := seedRecurrences(t, f)
	m := NewMaterializer(f.store, f.pub)
	march := core.NewYearMonth(2025, time.March)

	n, err := m.Materialize(ctx, march)
	if err != nil || n != 3 {
		t.Fatalf("first Materialize() = %d, %v, want 3", n, err)
	}
	n, err = m.Materialize(ctx, march)
	if err != nil || n != 0 {
		t.Fatalf("second Materialize() = %d, %v, want 0", n, err)
	}

	rows, _ := f.store.ListTransactionsBetween(ctx, march.FirstDay(), march.LastDay())
	byRecurrence := map[int64]core.Transaction{}
	for _, r := range rows {
		byRecurrence[r.RecurrenceID] = r
	}
	if len(byRecurrence) != 3 {
		t.Fatalf("rows per recurrence = %+v", byRecurrence)
	}
	if _, ok := byRecurrence[paused.ID]; ok {
		t.Fatalf("inactive template was materialized")
	}

	got := byRecurrence[rent.ID]
	if got.Date != core.NewDate(2025, time.March, 5) || got.Status != core.StatusPaid || got.AccountID != f.bank.ID || got.Description != "Rent" {
		t.Fatalf("rent row = %+v", got)
	}
	if byRecurrence[salary.ID].Description != "Monthly salary" {
		t.Fatalf("salary row = %+v", byRecurrence[salary.ID])
	}
	card := byRecurrence[streaming.ID]
	if card.Method != core.MethodCard || card.CardID != f.card.ID || card.StatementMonth != core.NewYearMonth(2025, time.April) {
		t.Fatalf("card row = %+v", card)
	}

	var materialized int
	for _, e := range f.pub.events {
		if e.eventType == EventRecurrencesMaterialized {
			materialized++
			if len(e.ids) != 3 || e.month != march {
				t.Fatalf("event = %+v", e)
			}
		}
	}
	if materialized != 1 {
		t.Fatalf("published %d materialization events, want 1", materialized)
	}

	n, err = m.Materialize(ctx, march.AddMonths(1))
	if err != nil || n != 3 {
		t.Fatalf("next month Materialize() = %d, %v, want 3", n, err)
	}
}

func TestMaterializeRejectsBadMonth(t *testing.T) {
	m := NewMaterializer(memory.New(), nil)
	for _, ym := range []core.YearMonth{{}, {Year: 2025, Month: 13}} {
		if _, err := m.Materialize(context.Background(), ym); !errors.Is(err, core.ErrInvalidMonth) {
			t.Fatalf("Materialize(%+v) = %v, want %v", ym, err, core.ErrInvalidMonth)
		}
	}
}

// racingStore simulates another caller posting a template between the
// materializer's read and its insert, or a failing insert.
type racingStore struct {
	*memory.Store
	failFor   int64
	failWith  error
	cardsGone bool
}

func (s *racingStore) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if t.RecurrenceID == s.failFor {
		return 0, s.failWith
	}
	return s.Store.InsertTransaction(ctx, t)
}

func (s *racingStore) GetCard(ctx context.Context, id int64) (core.Card, error) {
	if s.cardsGone {
		return core.Card{}, core.ErrNotFound
	}
	return s.Store.GetCard(ctx, id)
}

func TestMaterializeConflicts(t *testing.T) {
	tests := []struct {
		name      string
		store     func(f *fixture, rent core.Recurrence) *racingStore
		wantCount int
		wantErr   bool
	}{
		{
			name: "duplicate insert is skipped",
			store: func(f *fixture, rent core.Recurrence) *racingStore {
				return &racingStore{Store: f.store, failFor: rent.ID, failWith: core.ErrDuplicateRecurrence}
			},
			wantCount: 2,
		},
		{
			name: "missing card is skipped",
			store: func(f *fixture, _ core.Recurrence) *racingStore {
				return &racingStore{Store: f.store, cardsGone: true}
			},
			wantCount: 2,
		},
		{
			name: "other insert error aborts",
			store: func(f *fixture, rent core.Recurrence) *racingStore {
				return &racingStore{Store: f.store, failFor: rent.ID, failWith: errors.New("disk full")}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rent, _, _, _ := seedRecurrences(t, f)
			m := NewMaterializer(tt.store(f, rent), nil)

			n, err := m.Materialize(context.Background(), core.NewYearMonth(2025, time.March))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Materialize() error = nil, want failure")
				}
				// Rent is the first template, so nothing was created before it.
				if n != 0 {
					t.Fatalf("Materialize() count = %d, want 0", n)
				}
				return
			}
			if err != nil || n != tt.wantCount {
				t.Fatalf("Materialize() = %d, %v, want %d", n, err, tt.wantCount)
			}
		})
	}
}
