package core

import "github.com/shopspring/decimal"

// GoalPlan is the derived progress of a long-term goal.
type GoalPlan struct {
	Goal            Goal    `json:"goal"`
	MonthsElapsed   int     `json:"months_elapsed"`
	RealizedSavings Money   `json:"realized_savings"`
	CurrentAmount   Money   `json:"current_amount"`
	Remaining       Money   `json:"remaining"`
	NeedPerMonth    Money   `json:"need_per_month"`
	Progress        float64 `json:"progress"`
	// DiscretionarySpend is advisory: what went to DISCRETIONARY categories
	// inside the goal range.
	DiscretionarySpend Money `json:"discretionary_spend"`
}

// PlanGoal computes goal progress from rows dated in [start, end).
func PlanGoal(g Goal, txs []Transaction, rules []CategoryRule) GoalPlan {
	plan := GoalPlan{Goal: g}
	plan.MonthsElapsed = g.StartDate.YearMonth().MonthsUntil(g.EndDate.YearMonth())
	if plan.MonthsElapsed < 1 {
		plan.MonthsElapsed = 1
	}

	plan.RealizedSavings = CashFlowBetween(txs, g.StartDate, g.EndDate).Savings()
	plan.CurrentAmount = g.StartAmount.Add(plan.RealizedSavings)

	plan.Remaining = g.TargetAmount.Sub(plan.CurrentAmount)
	if plan.Remaining.IsNegative() {
		plan.Remaining = Money{}
	}
	plan.NeedPerMonth = MoneyFromDecimal(plan.Remaining.Decimal().Div(decimal.NewFromInt(int64(plan.MonthsElapsed))))

	if g.TargetAmount.IsPositive() {
		p, _ := plan.CurrentAmount.Decimal().Div(g.TargetAmount.Decimal()).Float64()
		plan.Progress = min(max(p, 0), 1)
	}

	idx := RuleIndex(rules)
	for _, t := range txs {
		if t.Date.Before(g.StartDate.Time) || !t.Date.Before(g.EndDate.Time) || !isSpend(t) {
			continue
		}
		if classOf(idx, t.Category) == ClassDiscretionary {
			plan.DiscretionarySpend = plan.DiscretionarySpend.Add(t.Amount)
		}
	}
	return plan
}
