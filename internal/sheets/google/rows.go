package google

import (
	"fmt"
	"strconv"
	"strings"

	"ledger/internal/core"
)

// headerRow is written once to an empty sheet.
var headerRow = []any{
	"ID", "Date", "Kind", "Method", "Amount", "Category", "Description", "Status", "Statement", "Installment",
}

// columns spanned by headerRow.
const columnRange = "A:J"

// transactionRow renders t as one sheet row in headerRow order. Amounts are
// signed decimals so the sheet can sum a column directly.
func transactionRow(t core.Transaction) []any {
	statement := ""
	if !t.StatementMonth.IsZero() {
		statement = t.StatementMonth.String()
	}
	installment := ""
	if t.InstallmentsTotal > 0 {
		installment = fmt.Sprintf("%d/%d", t.InstallmentNo, t.InstallmentsTotal)
	}
	return []any{
		t.ID,
		t.Date.String(),
		string(t.Kind),
		string(t.Method),
		t.Signed().String(),
		t.Category,
		t.Description,
		string(t.Status),
		statement,
		installment,
	}
}

// existingIDs collects the transaction ids found in the first column,
// ignoring the header and anything that is not a positive integer.
func existingIDs(values [][]any) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(values))
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[0])), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}
