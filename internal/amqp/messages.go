package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
)

// LedgerEvent announces a committed ledger change. It carries ids only;
// consumers read the rows back from the store.
type LedgerEvent struct {
	ID             uuid.UUID      `json:"id"`
	Type           string         `json:"type"`
	TransactionIDs []int64        `json:"transaction_ids"`
	Month          core.YearMonth `json:"month"`
	Timestamp      time.Time      `json:"timestamp"`
}

func NewLedgerEvent(eventType string, ids []int64, month core.YearMonth) *LedgerEvent {
	return &LedgerEvent{
		ID:             uuid.New(),
		Type:           eventType,
		TransactionIDs: ids,
		Month:          month,
		Timestamp:      time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errors.New("ledger event without type")
	}
	return &msg, nil
}

// MaterializeRequest asks a worker to materialize recurrences for Month.
type MaterializeRequest struct {
	ID          uuid.UUID      `json:"id"`
	Month       core.YearMonth `json:"month"`
	RequestedAt time.Time      `json:"requested_at"`
}

func NewMaterializeRequest(month core.YearMonth) *MaterializeRequest {
	return &MaterializeRequest{
		ID:          uuid.New(),
		Month:       month,
		RequestedAt: time.Now(),
	}
}

func (m *MaterializeRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MaterializeRequestFromJSON(data []byte) (*MaterializeRequest, error) {
	var msg MaterializeRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Month.IsZero() {
		return nil, errors.New("materialize request without month")
	}
	return &msg, nil
}
