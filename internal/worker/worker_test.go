package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/ledger/memory"
	"ledger/internal/log"
	"ledger/internal/services"
	sheetsmem "ledger/internal/sheets/memory"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Output: io.Discard})
}

type fixture struct {
	store  *memory.Store
	mirror *sheetsmem.Mirror
	worker *Worker
	ids    []int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	bank, err := store.InsertAccount(ctx, core.Account{Name: "Checking", Type: core.AccountBank})
	if err != nil {
		t.Fatalf("InsertAccount: %v", err)
	}
	ids, err := store.InsertTransactions(ctx, []core.Transaction{
		{Date: core.NewDate(2025, time.March, 3), Kind: core.KindExpense, Amount: core.Cents(1200),
			Status: core.StatusPaid, Method: core.MethodBank, AccountID: bank},
		{Date: core.NewDate(2025, time.March, 28), Kind: core.KindIncome, Amount: core.Cents(500000),
			Status: core.StatusPaid, Method: core.MethodBank, AccountID: bank},
		{Date: core.NewDate(2025, time.April, 1), Kind: core.KindExpense, Amount: core.Cents(900),
			Status: core.StatusPaid, Method: core.MethodBank, AccountID: bank},
	})
	if err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}
	mirror := sheetsmem.New()
	return &fixture{
		store:  store,
		mirror: mirror,
		worker: New(store, mirror, services.NewMaterializer(store, nil), quietLogger()),
		ids:    ids,
	}
}

func TestHandleLedgerEvent(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		ids       func(f *fixture) []int64
		wantRows  int
	}{
		{"created", services.EventTransactionsCreated, func(f *fixture) []int64 { return f.ids[:2] }, 2},
		{"materialized", services.EventRecurrencesMaterialized, func(f *fixture) []int64 { return f.ids[2:] }, 1},
		{"missing rows are skipped", services.EventTransactionsCreated, func(f *fixture) []int64 { return []int64{f.ids[0], 999} }, 1},
		{"deletions are ignored", services.EventTransactionsDeleted, func(f *fixture) []int64 { return f.ids }, 0},
		{"status changes are ignored", services.EventTransactionsStatus, func(f *fixture) []int64 { return f.ids }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ev := amqp.NewLedgerEvent(tt.eventType, tt.ids(f), core.NewYearMonth(2025, time.March))
			if err := f.worker.HandleLedgerEvent(context.Background(), ev); err != nil {
				t.Fatalf("HandleLedgerEvent() = %v", err)
			}
			if got := len(f.mirror.Rows()); got != tt.wantRows {
				t.Errorf("mirror has %d rows, want %d", got, tt.wantRows)
			}
		})
	}
}

func TestHandleLedgerEventIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ev := amqp.NewLedgerEvent(services.EventTransactionsCreated, f.ids, core.NewYearMonth(2025, time.March))
	for i := 0; i < 2; i++ {
		if err := f.worker.HandleLedgerEvent(context.Background(), ev); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if got := len(f.mirror.Rows()); got != 3 {
		t.Errorf("mirror has %d rows after redelivery, want 3", got)
	}
}

type failingMirror struct{}

func (failingMirror) AppendTransactions(context.Context, []core.Transaction) (int, error) {
	return 0, errors.New("quota exceeded")
}

func TestHandleLedgerEventMirrorFailure(t *testing.T) {
	f := newFixture(t)
	w := New(f.store, failingMirror{}, nil, quietLogger())
	ev := amqp.NewLedgerEvent(services.EventTransactionsCreated, f.ids, core.YearMonth{})
	if err := w.HandleLedgerEvent(context.Background(), ev); err == nil {
		t.Fatal("expected mirror error to be returned for redelivery")
	}
}

func TestHandleLedgerEventWithoutMirror(t *testing.T) {
	f := newFixture(t)
	w := New(f.store, nil, nil, quietLogger())
	ev := amqp.NewLedgerEvent(services.EventTransactionsCreated, f.ids, core.YearMonth{})
	if err := w.HandleLedgerEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleLedgerEvent() = %v", err)
	}
}

func TestHandleMaterializeRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	accounts, err := f.store.ListAccounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.InsertRecurrence(ctx, core.Recurrence{Name: "Rent", Kind: core.KindExpense,
		Amount: core.Cents(80000), Method: core.MethodBank, AccountID: accounts[0].ID, DayOfMonth: 5, Active: true}); err != nil {
		t.Fatalf("InsertRecurrence: %v", err)
	}

	req := amqp.NewMaterializeRequest(core.NewYearMonth(2025, time.May))
	for i := 0; i < 2; i++ {
		if err := f.worker.HandleMaterializeRequest(ctx, req); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	rows, err := f.store.ListTransactionsBetween(ctx, core.NewDate(2025, time.May, 1), core.NewDate(2025, time.May, 31))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Date.String() != "2025-05-05" {
		t.Errorf("May rows = %+v, want one rent payment on the 5th", rows)
	}

	if err := New(f.store, nil, nil, quietLogger()).HandleMaterializeRequest(ctx, req); err == nil {
		t.Error("expected error without materializer")
	}
}

func TestMirrorMonth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	march := core.NewYearMonth(2025, time.March)

	n, err := f.worker.MirrorMonth(ctx, march)
	if err != nil || n != 2 {
		t.Fatalf("MirrorMonth() = %d, %v, want 2", n, err)
	}
	n, err = f.worker.MirrorMonth(ctx, march)
	if err != nil || n != 0 {
		t.Fatalf("second MirrorMonth() = %d, %v, want 0", n, err)
	}
	if n, err := New(f.store, nil, nil, quietLogger()).MirrorMonth(ctx, march); n != 0 || err != nil {
		t.Errorf("MirrorMonth without mirror = %d, %v", n, err)
	}
}

// fakeConsumer replays canned messages, then blocks until cancelled.
type fakeConsumer struct {
	events   []*amqp.LedgerEvent
	requests []*amqp.MaterializeRequest
	failWith error
}

func (c *fakeConsumer) ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error {
	for _, ev := range c.events {
		if err := handler(ctx, ev); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeConsumer) ConsumeMaterializeRequests(ctx context.Context, handler func(context.Context, *amqp.MaterializeRequest) error) error {
	if c.failWith != nil {
		return c.failWith
	}
	for _, req := range c.requests {
		if err := handler(ctx, req); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	consumer := &fakeConsumer{
		events:   []*amqp.LedgerEvent{amqp.NewLedgerEvent(services.EventTransactionsCreated, f.ids, core.YearMonth{})},
		requests: []*amqp.MaterializeRequest{amqp.NewMaterializeRequest(core.NewYearMonth(2025, time.June))},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx, consumer) }()

	deadline := time.After(2 * time.Second)
	for len(f.mirror.Rows()) < 3 {
		select {
		case <-deadline:
			t.Fatal("events were not mirrored")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() after cancel = %v, want nil", err)
	}

	broken := &fakeConsumer{failWith: errors.New("queue missing")}
	if err := f.worker.Run(context.Background(), broken); err == nil || err.Error() != "queue missing" {
		t.Errorf("Run() = %v, want consumer error", err)
	}
}
