package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Installment struct {
	Number         int       `json:"number"`
	StatementMonth YearMonth `json:"statement_month"`
	Amount         Money     `json:"amount"`
}

// SplitInstallments divides total into n legs of round(total/n, 2). The
// rounding remainder goes to the last leg only, so the legs always add up to
// total. Leg i is billed in first+(i-1).
func SplitInstallments(total Money, n int, first YearMonth) ([]Installment, error) {
	if n < 1 {
		return nil, Invalid("installments", ErrInvalidInstallments)
	}
	per := MoneyFromDecimal(total.Decimal().Div(decimal.NewFromInt(int64(n))))
	diff := total.Sub(per.Mul(n))

	legs := make([]Installment, n)
	for i := range legs {
		legs[i] = Installment{
			Number:         i + 1,
			StatementMonth: first.AddMonths(i),
			Amount:         per,
		}
	}
	legs[n-1].Amount = legs[n-1].Amount.Add(diff)
	return legs, nil
}

// ExpandInstallments turns one card purchase into its n ledger rows. The
// purchase's StatementMonth is the statement of the first leg.
func ExpandInstallments(purchase Transaction, n int) ([]Transaction, error) {
	if purchase.Method != MethodCard {
		return nil, Invalid("method", ErrInvalidInstallments)
	}
	legs, err := SplitInstallments(purchase.Amount, n, purchase.StatementMonth)
	if err != nil {
		return nil, err
	}
	rows := make([]Transaction, 0, n)
	for _, leg := range legs {
		t := purchase
		t.ID = 0
		t.Kind = KindExpense
		t.Amount = leg.Amount
		t.StatementMonth = leg.StatementMonth
		t.InstallmentNo = leg.Number
		t.InstallmentsTotal = n
		t.Description = installmentDescription(purchase.Description, leg.Number, n)
		rows = append(rows, t)
	}
	return rows, nil
}

func installmentDescription(desc string, i, n int) string {
	suffix := fmt.Sprintf("(%d/%d)", i, n)
	if desc = strings.TrimSpace(desc); desc == "" {
		return suffix
	}
	return desc + " " + suffix
}
