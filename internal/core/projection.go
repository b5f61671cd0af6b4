package core

// ProjectionPoint is the running balance after applying one pending row.
type ProjectionPoint struct {
	TransactionID int64  `json:"transaction_id"`
	Date          Date   `json:"date"`
	Kind          Kind   `json:"kind"`
	Description   string `json:"description,omitempty"`
	Amount        Money  `json:"amount"`
	Balance       Money  `json:"balance"`
}

// ProjectBalance walks PENDING rows due in [today, today+horizonDays] in
// (date, id) order, starting from initial. Every method counts, card
// purchases included.
func ProjectBalance(initial Money, txs []Transaction, today Date, horizonDays int) []ProjectionPoint {
	if horizonDays < 0 {
		horizonDays = 0
	}
	until := today.AddDays(horizonDays)

	var due []Transaction
	for _, t := range txs {
		if t.Status != StatusPending {
			continue
		}
		if t.Date.Before(today.Time) || t.Date.After(until.Time) {
			continue
		}
		due = append(due, t)
	}
	SortByDateID(due)

	points := make([]ProjectionPoint, 0, len(due))
	bal := initial
	for _, t := range due {
		bal = bal.Add(t.Signed())
		points = append(points, ProjectionPoint{
			TransactionID: t.ID,
			Date:          t.Date,
			Kind:          t.Kind,
			Description:   t.Description,
			Amount:        t.Amount,
			Balance:       bal,
		})
	}
	return points
}
