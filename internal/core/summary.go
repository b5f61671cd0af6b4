package core

import (
	"cmp"
	"slices"
	"strings"
)

// UncategorizedLabel groups spend recorded without a category.
const UncategorizedLabel = "Uncategorized"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// ClassAmount is spend aggregated by category class.
type ClassAmount struct {
	Class  CategoryClass `json:"class"`
	Amount Money         `json:"amount"`
}

// RefAmount is spend aggregated by account or card id. Name is filled in by
// callers that know the entity names.
type RefAmount struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Amount Money  `json:"amount"`
}

// MonthlySummary is the cash-flow view of one month.
//
// Card purchases never count here: money leaves an account only when the
// statement is paid, which shows up under CardPayments.
type MonthlySummary struct {
	Month           YearMonth        `json:"month"`
	Income          Money            `json:"income"`
	ExpenseBankCash Money            `json:"expense_bank_cash"`
	CardPayments    Money            `json:"card_payments"`
	Savings         Money            `json:"savings"`
	ExpectedIncome  Money            `json:"expected_income"`
	ExpectedExpense Money            `json:"expected_expense"`
	ExpectedNet     Money            `json:"expected_net"`
	ByCategory      []CategoryAmount `json:"by_category"`
	ByClass         []ClassAmount    `json:"by_class"`
	ByAccount       []RefAmount      `json:"by_account"`
	ByCard          []RefAmount      `json:"by_card"`
}

// CashFlow holds the PAID amounts savings are computed from.
type CashFlow struct {
	Income          Money
	ExpenseBankCash Money
	CardPayments    Money
}

func (c CashFlow) Savings() Money {
	return c.Income.Sub(c.ExpenseBankCash).Sub(c.CardPayments)
}

func (c *CashFlow) add(t Transaction) {
	if t.Status != StatusPaid {
		return
	}
	switch {
	case t.Kind == KindIncome:
		c.Income = c.Income.Add(t.Amount)
	case t.Method.Cash():
		c.ExpenseBankCash = c.ExpenseBankCash.Add(t.Amount)
	case t.Method == MethodCardPayment:
		c.CardPayments = c.CardPayments.Add(t.Amount)
	}
}

// CashFlowBetween sums PAID rows dated in [from, to).
func CashFlowBetween(txs []Transaction, from, to Date) CashFlow {
	var cf CashFlow
	for _, t := range txs {
		if t.Date.Before(from.Time) || !t.Date.Before(to.Time) {
			continue
		}
		cf.add(t)
	}
	return cf
}

// isSpend reports whether a row is PAID outgoing cash: bank/cash expenses
// and statement payments.
func isSpend(t Transaction) bool {
	return t.Status == StatusPaid && t.Kind == KindExpense &&
		(t.Method.Cash() || t.Method == MethodCardPayment)
}

// RuleIndex maps normalized category names to their class.
func RuleIndex(rules []CategoryRule) map[string]CategoryClass {
	idx := make(map[string]CategoryClass, len(rules))
	for _, r := range rules {
		idx[NormalizeCategory(r.Category)] = r.Class
	}
	return idx
}

func classOf(idx map[string]CategoryClass, category string) CategoryClass {
	if c, ok := idx[NormalizeCategory(category)]; ok {
		return c
	}
	return ClassUnclassified
}

// SummarizeMonth computes the monthly summary from the full history.
func SummarizeMonth(month YearMonth, txs []Transaction, rules []CategoryRule) MonthlySummary {
	s := MonthlySummary{Month: month}
	var cf CashFlow
	byCategory := map[string]Money{}
	byClass := map[CategoryClass]Money{}
	byAccount := map[int64]Money{}
	byCard := map[int64]Money{}
	idx := RuleIndex(rules)

	for _, t := range txs {
		if !month.Contains(t.Date) {
			continue
		}
		cf.add(t)

		if t.Status == StatusPending {
			if t.Kind == KindIncome {
				s.ExpectedIncome = s.ExpectedIncome.Add(t.Amount)
			} else {
				s.ExpectedExpense = s.ExpectedExpense.Add(t.Amount)
			}
		}

		if isSpend(t) {
			name := strings.TrimSpace(t.Category)
			if name == "" {
				name = UncategorizedLabel
			}
			byCategory[name] = byCategory[name].Add(t.Amount)
			class := classOf(idx, t.Category)
			byClass[class] = byClass[class].Add(t.Amount)
			byAccount[t.AccountID] = byAccount[t.AccountID].Add(t.Amount)
			if t.CardID != 0 {
				byCard[t.CardID] = byCard[t.CardID].Add(t.Amount)
			}
		}
	}

	s.Income = cf.Income
	s.ExpenseBankCash = cf.ExpenseBankCash
	s.CardPayments = cf.CardPayments
	s.Savings = cf.Savings()
	s.ExpectedNet = s.ExpectedIncome.Sub(s.ExpectedExpense)

	s.ByCategory = make([]CategoryAmount, 0, len(byCategory))
	for name, amt := range byCategory {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Name: name, Amount: amt})
	}
	slices.SortFunc(s.ByCategory, func(a, b CategoryAmount) int {
		if c := cmp.Compare(b.Amount.Cents, a.Amount.Cents); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	s.ByClass = []ClassAmount{}
	for _, c := range []CategoryClass{ClassEssential, ClassDiscretionary, ClassUnclassified} {
		if amt, ok := byClass[c]; ok {
			s.ByClass = append(s.ByClass, ClassAmount{Class: c, Amount: amt})
		}
	}
	s.ByAccount = refAmounts(byAccount)
	s.ByCard = refAmounts(byCard)
	return s
}

// refAmounts orders the totals by descending amount, ties by id.
func refAmounts(totals map[int64]Money) []RefAmount {
	out := make([]RefAmount, 0, len(totals))
	for id, amt := range totals {
		out = append(out, RefAmount{ID: id, Amount: amt})
	}
	slices.SortFunc(out, func(a, b RefAmount) int {
		if c := cmp.Compare(b.Amount.Cents, a.Amount.Cents); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
