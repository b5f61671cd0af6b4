package sheets

import (
	"context"

	"ledger/internal/core"
)

// TransactionMirror receives copies of ledger rows for read-only consumers.
// Implementations skip rows they already hold, so repeated calls with the
// same transactions are harmless.
type TransactionMirror interface {
	AppendTransactions(ctx context.Context, txs []core.Transaction) (appended int, err error)
}
