package memory

import (
	"context"
	"sync"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

var _ ports.TransactionMirror = (*Mirror)(nil)

// Mirror keeps mirrored rows in memory, in append order. It stands in for
// the Google Sheets mirror in development and tests.
type Mirror struct {
	mu   sync.Mutex
	rows []core.Transaction
	ids  map[int64]struct{}
}

func New() *Mirror {
	return &Mirror{ids: make(map[int64]struct{})}
}

// AppendTransactions stores the transactions not mirrored yet.
func (m *Mirror) AppendTransactions(_ context.Context, txs []core.Transaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range txs {
		if _, ok := m.ids[t.ID]; ok {
			continue
		}
		m.ids[t.ID] = struct{}{}
		m.rows = append(m.rows, t)
		n++
	}
	return n, nil
}

// Rows returns a copy of the mirrored rows.
func (m *Mirror) Rows() []core.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Transaction(nil), m.rows...)
}
