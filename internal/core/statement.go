package core

import (
	"cmp"
	"slices"
)

// ResolveStatementMonth maps a card purchase to the statement it is billed
// under. Purchases up to and including the closing day belong to the
// purchase month, later ones roll into the next month.
func ResolveStatementMonth(purchase Date, closingDay int) YearMonth {
	ym := purchase.YearMonth()
	if purchase.Day() <= closingDay {
		return ym
	}
	return ym.AddMonths(1)
}

// Statement is the derived view of one card statement.
type Statement struct {
	CardID int64         `json:"card_id"`
	Month  YearMonth     `json:"month"`
	Total  Money         `json:"total"`
	Items  []Transaction `json:"items"`
}

func onStatement(t Transaction, cardID int64, month YearMonth) bool {
	return t.Method == MethodCard && t.CardID == cardID && t.StatementMonth == month
}

// StatementTotal sums every purchase leg billed to the statement, paid or not.
func StatementTotal(cardID int64, month YearMonth, txs []Transaction) Money {
	var total Money
	for _, t := range txs {
		if onStatement(t, cardID, month) {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// BuildStatement returns the statement with its items ordered by date, then id.
func BuildStatement(cardID int64, month YearMonth, txs []Transaction) Statement {
	st := Statement{CardID: cardID, Month: month, Items: []Transaction{}}
	for _, t := range txs {
		if onStatement(t, cardID, month) {
			st.Items = append(st.Items, t)
			st.Total = st.Total.Add(t.Amount)
		}
	}
	SortByDateID(st.Items)
	return st
}

// StatementMonths lists, ascending, every month with at least one purchase on the card.
func StatementMonths(cardID int64, txs []Transaction) []YearMonth {
	seen := make(map[YearMonth]struct{})
	months := []YearMonth{}
	for _, t := range txs {
		if t.Method != MethodCard || t.CardID != cardID || t.StatementMonth.IsZero() {
			continue
		}
		if _, ok := seen[t.StatementMonth]; ok {
			continue
		}
		seen[t.StatementMonth] = struct{}{}
		months = append(months, t.StatementMonth)
	}
	slices.SortFunc(months, YearMonth.Compare)
	return months
}

// SortByDateID orders rows by date and breaks ties by id.
func SortByDateID(txs []Transaction) {
	slices.SortStableFunc(txs, func(a, b Transaction) int {
		if c := a.Date.Compare(b.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
