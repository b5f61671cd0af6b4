// Package worker consumes broker messages produced by the ledger API: it
// mirrors new transactions to a spreadsheet and materializes recurrences on
// request.
package worker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/sheets"
)

// TransactionReader is the slice of the store the worker reads from.
type TransactionReader interface {
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ListTransactionsBetween(ctx context.Context, from, to core.Date) ([]core.Transaction, error)
}

type Materializer interface {
	Materialize(ctx context.Context, month core.YearMonth) (int, error)
}

// Consumer is satisfied by *amqp.Client.
type Consumer interface {
	ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error
	ConsumeMaterializeRequests(ctx context.Context, handler func(context.Context, *amqp.MaterializeRequest) error) error
}

// Worker handles ledger events and materialization requests.
type Worker struct {
	store        TransactionReader
	mirror       sheets.TransactionMirror
	materializer Materializer
	logger       *log.Logger
}

// New wires a worker. mirror may be nil, in which case ledger events are
// acknowledged without side effects.
func New(store TransactionReader, mirror sheets.TransactionMirror, materializer Materializer, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Worker{
		store:        store,
		mirror:       mirror,
		materializer: materializer,
		logger:       logger.WithComponent(log.ComponentWorker),
	}
}

// HandleLedgerEvent mirrors the rows named by a creation event. Other event
// types are ignored: the mirror is append-only.
func (w *Worker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	fields := log.NewFields().WithEvent(ev.ID.String(), ev.Type, ev.TransactionIDs)

	switch ev.Type {
	case services.EventTransactionsCreated, services.EventRecurrencesMaterialized:
	default:
		w.logger.DebugContext(ctx, "Ignoring ledger event", fields.ToSlice()...)
		return nil
	}
	if w.mirror == nil {
		w.logger.DebugContext(ctx, "No mirror configured, skipping event", fields.ToSlice()...)
		return nil
	}

	rows := make([]core.Transaction, 0, len(ev.TransactionIDs))
	for _, id := range ev.TransactionIDs {
		t, err := w.store.GetTransaction(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			// Deleted before we got to it.
			w.logger.InfoContext(ctx, "Transaction gone, not mirroring", log.FieldTransactionID, id)
			continue
		}
		if err != nil {
			return fmt.Errorf("get transaction %d: %w", id, err)
		}
		rows = append(rows, t)
	}

	appended, err := w.mirror.AppendTransactions(ctx, rows)
	if err != nil {
		return fmt.Errorf("mirror transactions: %w", err)
	}
	w.logger.InfoContext(ctx, "Ledger event mirrored", append(fields.ToSlice(), "appended", appended)...)
	return nil
}

// HandleMaterializeRequest materializes the requested month. Re-delivery is
// harmless because materialization skips recurrences already posted.
func (w *Worker) HandleMaterializeRequest(ctx context.Context, req *amqp.MaterializeRequest) error {
	if w.materializer == nil {
		return errors.New("no materializer configured")
	}
	created, err := w.materializer.Materialize(ctx, req.Month)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", req.Month, err)
	}
	w.logger.InfoContext(ctx, "Materialize request handled",
		log.FieldMessageID, req.ID.String(),
		log.FieldMonth, req.Month.String(),
		"created", created)
	return nil
}

// MirrorMonth appends every transaction dated in month that the mirror does
// not hold yet. The worker runs it at startup to recover events lost while
// it was down.
func (w *Worker) MirrorMonth(ctx context.Context, month core.YearMonth) (int, error) {
	if w.mirror == nil {
		return 0, nil
	}
	rows, err := w.store.ListTransactionsBetween(ctx, month.FirstDay(), month.LastDay())
	if err != nil {
		return 0, fmt.Errorf("list transactions for %s: %w", month, err)
	}
	appended, err := w.mirror.AppendTransactions(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("mirror %s: %w", month, err)
	}
	w.logger.InfoContext(ctx, "Startup mirror check completed",
		log.FieldMonth, month.String(), "rows", len(rows), "appended", appended)
	return appended, nil
}

// Run consumes both queues until ctx ends or one consumer fails.
func (w *Worker) Run(ctx context.Context, consumer Consumer) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.ConsumeLedgerEvents(ctx, w.HandleLedgerEvent)
	})
	g.Go(func() error {
		return consumer.ConsumeMaterializeRequests(ctx, w.HandleMaterializeRequest)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
