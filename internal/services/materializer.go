package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// MaterializerStore is the slice of the store the materializer needs.
type MaterializerStore interface {
	ledger.TransactionStore
	ledger.RecurrenceStore
	ledger.CardStore
}

// Materializer turns active recurrence templates into concrete
// transactions for a month. Running it twice for the same month is a no-op.
type Materializer struct {
	store     MaterializerStore
	publisher EventPublisher
}

// NewMaterializer creates a materializer. publisher may be nil.
func NewMaterializer(store MaterializerStore, publisher EventPublisher) *Materializer {
	return &Materializer{store: store, publisher: publisher}
}

// Materialize posts one transaction per active template not yet posted in
// target and returns how many rows it created. The first failing insert
// aborts the run; rows created before it stay.
func (m *Materializer) Materialize(ctx context.Context, target core.YearMonth) (int, error) {
	if m.store == nil {
		return 0, fmt.Errorf("materializer not properly initialized")
	}
	if target.IsZero() {
		return 0, core.Invalid("month", core.ErrInvalidMonth)
	}
	if err := target.Validate(); err != nil {
		return 0, core.Invalid("month", err)
	}

	existing, err := m.store.ListTransactionsBetween(ctx, target.FirstDay(), target.LastDay())
	if err != nil {
		return 0, fmt.Errorf("list transactions for %s: %w", target, err)
	}
	posted := make(map[int64]bool)
	for _, t := range existing {
		if t.RecurrenceID != 0 {
			posted[t.RecurrenceID] = true
		}
	}

	templates, err := m.store.ListRecurrences(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurrences: %w", err)
	}

	slog.InfoContext(ctx, "Materializing recurrences",
		"month", target.String(),
		"templates", len(templates),
		"already_posted", len(posted))

	var created []int64
	for _, r := range templates {
		if !r.Active || posted[r.ID] {
			continue
		}

		t, err := m.build(ctx, r, target)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Card for recurrence not found, skipping",
				"recurrence_id", r.ID,
				"card_id", r.CardID)
			continue
		}
		if err != nil {
			m.announce(ctx, created, target)
			return len(created), err
		}

		id, err := m.store.InsertTransaction(ctx, t)
		if errors.Is(err, core.ErrDuplicateRecurrence) {
			// Another caller posted it between our read and write.
			slog.InfoContext(ctx, "Recurrence already posted, skipping",
				"recurrence_id", r.ID,
				"month", target.String())
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurrence",
				"recurrence_id", r.ID,
				"month", target.String(),
				"error", err)
			m.announce(ctx, created, target)
			return len(created), fmt.Errorf("materialize recurrence %d: %w", r.ID, err)
		}

		created = append(created, id)
		slog.DebugContext(ctx, "Materialized recurrence",
			"recurrence_id", r.ID,
			"transaction_id", id,
			"amount", r.Amount.String())
	}

	slog.InfoContext(ctx, "Recurrence materialization complete",
		"month", target.String(),
		"created", len(created))

	m.announce(ctx, created, target)
	return len(created), nil
}

// build constructs the transaction for template r in month target.
func (m *Materializer) build(ctx context.Context, r core.Recurrence, target core.YearMonth) (core.Transaction, error) {
	t := core.Transaction{
		Date:         target.Day(r.DayOfMonth),
		Kind:         r.Kind,
		Amount:       r.Amount,
		Category:     r.Category,
		Description:  r.Description,
		Status:       core.StatusPaid,
		Method:       r.Method,
		RecurrenceID: r.ID,
	}
	if t.Description == "" {
		t.Description = r.Name
	}

	switch r.Method {
	case core.MethodCard:
		card, err := m.store.GetCard(ctx, r.CardID)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("card for recurrence %d: %w", r.ID, err)
		}
		t.Kind = core.KindExpense
		t.CardID = card.ID
		t.StatementMonth = core.ResolveStatementMonth(t.Date, card.ClosingDay)
	default:
		t.AccountID = r.AccountID
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("recurrence %d: %w", r.ID, err)
	}
	return t, nil
}

func (m *Materializer) announce(ctx context.Context, ids []int64, month core.YearMonth) {
	if len(ids) == 0 || m.publisher == nil {
		return
	}
	if err := m.publisher.PublishLedgerEvent(ctx, EventRecurrencesMaterialized, ids, month); err != nil {
		slog.ErrorContext(ctx, "Failed to publish materialization event",
			"month", month.String(),
			"error", err)
	}
}
