package postgres

import (
	"ledger/internal/core"
)

// Row models. Dates are stored as ISO text so the recurrence/month unique
// index can use an immutable substr() expression.

type accountRow struct {
	ID                  int64  `gorm:"primaryKey"`
	Name                string `gorm:"size:255;not null"`
	Type                string `gorm:"size:8;not null;check:chk_accounts_type,type IN ('BANK', 'CASH')"`
	InitialBalanceCents int64  `gorm:"not null"`
}

func (accountRow) TableName() string { return "accounts" }

type cardRow struct {
	ID           int64       `gorm:"primaryKey"`
	Name         string      `gorm:"size:255;not null"`
	ClosingDay   int         `gorm:"not null;check:chk_cards_closing_day,closing_day BETWEEN 1 AND 28"`
	DueDay       int         `gorm:"not null;check:chk_cards_due_day,due_day BETWEEN 1 AND 28"`
	PayAccountID int64       `gorm:"not null;index"`
	PayAccount   *accountRow `gorm:"foreignKey:PayAccountID;constraint:OnDelete:RESTRICT"`
	Last4        string      `gorm:"size:4;not null"`
}

func (cardRow) TableName() string { return "cards" }

type recurrenceRow struct {
	ID          int64       `gorm:"primaryKey"`
	Name        string      `gorm:"size:255;not null"`
	Kind        string      `gorm:"size:8;not null;check:chk_recurrences_kind,kind IN ('INCOME', 'EXPENSE')"`
	AmountCents int64       `gorm:"not null;check:chk_recurrences_amount,amount_cents >= 0"`
	Category    string      `gorm:"size:255;not null"`
	Description string      `gorm:"size:255;not null"`
	Method      string      `gorm:"size:16;not null;check:chk_recurrences_method,method IN ('BANK', 'CASH', 'CARD')"`
	AccountID   *int64      `gorm:"index"`
	Account     *accountRow `gorm:"foreignKey:AccountID;constraint:OnDelete:RESTRICT"`
	CardID      *int64      `gorm:"index"`
	Card        *cardRow    `gorm:"foreignKey:CardID;constraint:OnDelete:RESTRICT"`
	DayOfMonth  int         `gorm:"not null;check:chk_recurrences_day,day_of_month BETWEEN 1 AND 28"`
	Active      bool        `gorm:"not null"`
}

func (recurrenceRow) TableName() string { return "recurrences" }

type transactionRow struct {
	ID                int64          `gorm:"primaryKey"`
	Dt                string         `gorm:"type:char(10);not null;index"`
	Kind              string         `gorm:"size:8;not null;check:chk_transactions_kind,kind IN ('INCOME', 'EXPENSE')"`
	AmountCents       int64          `gorm:"not null;check:chk_transactions_amount,amount_cents >= 0"`
	Category          string         `gorm:"size:255;not null"`
	Description       string         `gorm:"size:255;not null"`
	Status            string         `gorm:"size:8;not null;check:chk_transactions_status,status IN ('PENDING', 'PAID')"`
	Method            string         `gorm:"size:16;not null;check:chk_transactions_method,method IN ('BANK', 'CASH', 'CARD', 'CARD_PAYMENT')"`
	AccountID         *int64         `gorm:"index"`
	Account           *accountRow    `gorm:"foreignKey:AccountID;constraint:OnDelete:RESTRICT"`
	CardID            *int64         `gorm:"index:idx_transactions_card_statement"`
	Card              *cardRow       `gorm:"foreignKey:CardID;constraint:OnDelete:RESTRICT"`
	StatementMonth    *string        `gorm:"type:char(7);index:idx_transactions_card_statement"`
	InstallmentsTotal *int           `gorm:"check:chk_transactions_installments,(installments_total IS NULL) = (installment_no IS NULL)"`
	InstallmentNo     *int
	RecurrenceID      *int64
	Recurrence        *recurrenceRow `gorm:"foreignKey:RecurrenceID;constraint:OnDelete:RESTRICT"`
}

func (transactionRow) TableName() string { return "transactions" }

type transferRow struct {
	ID            int64       `gorm:"primaryKey"`
	Dt            string      `gorm:"type:char(10);not null;index"`
	AmountCents   int64       `gorm:"not null;check:chk_transfers_amount,amount_cents > 0"`
	FromAccountID int64       `gorm:"not null;check:chk_transfers_distinct,from_account_id <> to_account_id"`
	FromAccount   *accountRow `gorm:"foreignKey:FromAccountID;constraint:OnDelete:RESTRICT"`
	ToAccountID   int64       `gorm:"not null"`
	ToAccount     *accountRow `gorm:"foreignKey:ToAccountID;constraint:OnDelete:RESTRICT"`
	Description   string      `gorm:"size:255;not null"`
	Status        string      `gorm:"size:8;not null;check:chk_transfers_status,status IN ('PENDING', 'PAID')"`
}

func (transferRow) TableName() string { return "transfers" }

type goalRow struct {
	ID               int64  `gorm:"primaryKey"`
	Name             string `gorm:"size:255;not null"`
	TargetCents      int64  `gorm:"not null"`
	StartDate        string `gorm:"type:char(10);not null"`
	EndDate          string `gorm:"type:char(10);not null;check:chk_goals_range,end_date > start_date"`
	StartAmountCents int64  `gorm:"not null"`
	Active           bool   `gorm:"not null"`
}

func (goalRow) TableName() string { return "goals" }

type categoryRuleRow struct {
	Category string `gorm:"primaryKey;size:255"`
	Class    string `gorm:"size:16;not null;check:chk_category_rules_class,class IN ('ESSENTIAL', 'DISCRETIONARY')"`
}

func (categoryRuleRow) TableName() string { return "category_rules" }

func optInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func optInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func toAccountRow(a core.Account) accountRow {
	return accountRow{ID: a.ID, Name: a.Name, Type: string(a.Type), InitialBalanceCents: a.InitialBalance.Cents}
}

func (r accountRow) toCore() core.Account {
	return core.Account{ID: r.ID, Name: r.Name, Type: core.AccountType(r.Type), InitialBalance: core.Cents(r.InitialBalanceCents)}
}

func toCardRow(c core.Card) cardRow {
	return cardRow{ID: c.ID, Name: c.Name, ClosingDay: c.ClosingDay, DueDay: c.DueDay, PayAccountID: c.PayAccountID, Last4: c.Last4}
}

func (r cardRow) toCore() core.Card {
	return core.Card{ID: r.ID, Name: r.Name, ClosingDay: r.ClosingDay, DueDay: r.DueDay, PayAccountID: r.PayAccountID, Last4: r.Last4}
}

func toRecurrenceRow(rc core.Recurrence) recurrenceRow {
	return recurrenceRow{
		ID:          rc.ID,
		Name:        rc.Name,
		Kind:        string(rc.Kind),
		AmountCents: rc.Amount.Cents,
		Category:    rc.Category,
		Description: rc.Description,
		Method:      string(rc.Method),
		AccountID:   optInt64(rc.AccountID),
		CardID:      optInt64(rc.CardID),
		DayOfMonth:  rc.DayOfMonth,
		Active:      rc.Active,
	}
}

func (r recurrenceRow) toCore() core.Recurrence {
	return core.Recurrence{
		ID:          r.ID,
		Name:        r.Name,
		Kind:        core.Kind(r.Kind),
		Amount:      core.Cents(r.AmountCents),
		Category:    r.Category,
		Description: r.Description,
		Method:      core.Method(r.Method),
		AccountID:   deref(r.AccountID),
		CardID:      deref(r.CardID),
		DayOfMonth:  r.DayOfMonth,
		Active:      r.Active,
	}
}

func toTransactionRow(t core.Transaction) transactionRow {
	row := transactionRow{
		ID:                t.ID,
		Dt:                t.Date.String(),
		Kind:              string(t.Kind),
		AmountCents:       t.Amount.Cents,
		Category:          t.Category,
		Description:       t.Description,
		Status:            string(t.Status),
		Method:            string(t.Method),
		AccountID:         optInt64(t.AccountID),
		CardID:            optInt64(t.CardID),
		InstallmentsTotal: optInt(t.InstallmentsTotal),
		InstallmentNo:     optInt(t.InstallmentNo),
		RecurrenceID:      optInt64(t.RecurrenceID),
	}
	if !t.StatementMonth.IsZero() {
		s := t.StatementMonth.String()
		row.StatementMonth = &s
	}
	return row
}

func (r transactionRow) toCore() (core.Transaction, error) {
	d, err := core.ParseDate(r.Dt)
	if err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		ID:                r.ID,
		Date:              d,
		Kind:              core.Kind(r.Kind),
		Amount:            core.Cents(r.AmountCents),
		Category:          r.Category,
		Description:       r.Description,
		Status:            core.Status(r.Status),
		Method:            core.Method(r.Method),
		AccountID:         deref(r.AccountID),
		CardID:            deref(r.CardID),
		InstallmentsTotal: deref(r.InstallmentsTotal),
		InstallmentNo:     deref(r.InstallmentNo),
		RecurrenceID:      deref(r.RecurrenceID),
	}
	if r.StatementMonth != nil {
		if t.StatementMonth, err = core.ParseYearMonth(*r.StatementMonth); err != nil {
			return core.Transaction{}, err
		}
	}
	return t, nil
}

func toTransferRow(t core.Transfer) transferRow {
	return transferRow{
		ID:            t.ID,
		Dt:            t.Date.String(),
		AmountCents:   t.Amount.Cents,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Description:   t.Description,
		Status:        string(t.Status),
	}
}

func (r transferRow) toCore() (core.Transfer, error) {
	d, err := core.ParseDate(r.Dt)
	if err != nil {
		return core.Transfer{}, err
	}
	return core.Transfer{
		ID:            r.ID,
		Date:          d,
		Amount:        core.Cents(r.AmountCents),
		FromAccountID: r.FromAccountID,
		ToAccountID:   r.ToAccountID,
		Description:   r.Description,
		Status:        core.Status(r.Status),
	}, nil
}

func toGoalRow(g core.Goal) goalRow {
	return goalRow{
		ID:               g.ID,
		Name:             g.Name,
		TargetCents:      g.TargetAmount.Cents,
		StartDate:        g.StartDate.String(),
		EndDate:          g.EndDate.String(),
		StartAmountCents: g.StartAmount.Cents,
		Active:           g.Active,
	}
}

func (r goalRow) toCore() (core.Goal, error) {
	start, err := core.ParseDate(r.StartDate)
	if err != nil {
		return core.Goal{}, err
	}
	end, err := core.ParseDate(r.EndDate)
	if err != nil {
		return core.Goal{}, err
	}
	return core.Goal{
		ID:           r.ID,
		Name:         r.Name,
		TargetAmount: core.Cents(r.TargetCents),
		StartDate:    start,
		EndDate:      end,
		StartAmount:  core.Cents(r.StartAmountCents),
		Active:       r.Active,
	}, nil
}
