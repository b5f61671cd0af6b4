package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxDay caps closing, due and recurrence days so that every month has them.
const MaxDay = 28

const maxDescription = 200

type (
	AccountType   string
	Kind          string
	Status        string
	Method        string
	CategoryClass string
)

const (
	AccountBank AccountType = "BANK"
	AccountCash AccountType = "CASH"

	KindIncome  Kind = "INCOME"
	KindExpense Kind = "EXPENSE"

	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"

	MethodBank        Method = "BANK"
	MethodCash        Method = "CASH"
	MethodCard        Method = "CARD"
	MethodCardPayment Method = "CARD_PAYMENT"

	ClassEssential     CategoryClass = "ESSENTIAL"
	ClassDiscretionary CategoryClass = "DISCRETIONARY"
	// ClassUnclassified labels spend whose category has no rule. Never persisted.
	ClassUnclassified CategoryClass = "UNCLASSIFIED"
)

func (t AccountType) Valid() bool { return t == AccountBank || t == AccountCash }
func (k Kind) Valid() bool        { return k == KindIncome || k == KindExpense }
func (s Status) Valid() bool      { return s == StatusPending || s == StatusPaid }

func (m Method) Valid() bool {
	switch m {
	case MethodBank, MethodCash, MethodCard, MethodCardPayment:
		return true
	}
	return false
}

// Cash reports whether the method moves money on an account at the row's date.
func (m Method) Cash() bool { return m == MethodBank || m == MethodCash }

func (c CategoryClass) Valid() bool { return c == ClassEssential || c == ClassDiscretionary }

type (
	Account struct {
		ID             int64       `json:"id"`
		Name           string      `json:"name"`
		Type           AccountType `json:"type"`
		InitialBalance Money       `json:"initial_balance"`
	}

	Card struct {
		ID           int64  `json:"id"`
		Name         string `json:"name"`
		ClosingDay   int    `json:"closing_day"`
		DueDay       int    `json:"due_day"`
		PayAccountID int64  `json:"pay_account_id"`
		Last4        string `json:"last4,omitempty"`
	}

	// Transaction is one ledger row. Zero-valued references (AccountID, CardID,
	// StatementMonth, installment fields, RecurrenceID) mean "not set".
	Transaction struct {
		ID                int64     `json:"id"`
		Date              Date      `json:"date"`
		Kind              Kind      `json:"kind"`
		Amount            Money     `json:"amount"`
		Category          string    `json:"category,omitempty"`
		Description       string    `json:"description,omitempty"`
		Status            Status    `json:"status"`
		Method            Method    `json:"method"`
		AccountID         int64     `json:"account_id,omitempty"`
		CardID            int64     `json:"card_id,omitempty"`
		StatementMonth    YearMonth `json:"statement_month"`
		InstallmentsTotal int       `json:"installments_total,omitempty"`
		InstallmentNo     int       `json:"installment_no,omitempty"`
		RecurrenceID      int64     `json:"recurrence_id,omitempty"`
	}

	// Recurrence is a standing monthly instruction. It never moves money by
	// itself; see Materializer.
	Recurrence struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Kind        Kind   `json:"kind"`
		Amount      Money  `json:"amount"`
		Category    string `json:"category,omitempty"`
		Description string `json:"description,omitempty"`
		Method      Method `json:"method"`
		AccountID   int64  `json:"account_id,omitempty"`
		CardID      int64  `json:"card_id,omitempty"`
		DayOfMonth  int    `json:"day_of_month"`
		Active      bool   `json:"active"`
	}

	Transfer struct {
		ID            int64  `json:"id"`
		Date          Date   `json:"date"`
		Amount        Money  `json:"amount"`
		FromAccountID int64  `json:"from_account_id"`
		ToAccountID   int64  `json:"to_account_id"`
		Description   string `json:"description,omitempty"`
		Status        Status `json:"status"`
	}

	Goal struct {
		ID           int64  `json:"id"`
		Name         string `json:"name"`
		TargetAmount Money  `json:"target_amount"`
		StartDate    Date   `json:"start_date"`
		EndDate      Date   `json:"end_date"`
		StartAmount  Money  `json:"start_amount"`
		Active       bool   `json:"active"`
	}

	CategoryRule struct {
		Category string        `json:"category"`
		Class    CategoryClass `json:"class"`
	}
)

var (
	ErrNotFound            = errors.New("not found")
	ErrReferenced          = errors.New("still referenced by other records")
	ErrDuplicateRecurrence = errors.New("recurrence already materialized for this month")

	ErrInvalidDay          = fmt.Errorf("day must be between 1 and %d", MaxDay)
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidKind         = errors.New("invalid kind")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidMethod       = errors.New("invalid method")
	ErrInvalidAccountType  = errors.New("invalid account type")
	ErrInvalidClass        = errors.New("invalid category class")
	ErrInvalidInstallments = errors.New("invalid installments")
	ErrInvalidLast4        = errors.New("last4 must be four digits")
	ErrEmptyName           = errors.New("empty name")
	ErrEmptyCategory       = errors.New("empty category")
	ErrDescriptionTooLong  = fmt.Errorf("description too long (max %d characters)", maxDescription)
	ErrMissingAccount      = errors.New("account is required")
	ErrMissingCard         = errors.New("card is required")
	ErrMissingStatement    = errors.New("statement month is required")
	ErrUnexpectedAccount   = errors.New("account not allowed for this method")
	ErrUnexpectedCard      = errors.New("card not allowed for this method")
	ErrUnexpectedStatement = errors.New("statement month only applies to card rows")
	ErrSameAccount         = errors.New("source and destination accounts must differ")
	ErrInvalidGoalRange    = errors.New("end date must be after start date")
)

// ValidationError marks an input that was rejected before anything was
// persisted.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a ValidationError on field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err was caused by rejected input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var last4Re = regexp.MustCompile(`^[0-9]{4}$`)

func validDay(d int) bool { return d >= 1 && d <= MaxDay }

// NormalizeCategory is the key category rules are matched on.
func NormalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

// Signed returns the amount with the sign implied by the kind.
func (t Transaction) Signed() Money {
	if t.Kind == KindIncome {
		return t.Amount
	}
	return t.Amount.Neg()
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if !a.Type.Valid() {
		return Invalid("type", ErrInvalidAccountType)
	}
	return nil
}

func (c Card) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if !validDay(c.ClosingDay) {
		return Invalid("closing_day", ErrInvalidDay)
	}
	if !validDay(c.DueDay) {
		return Invalid("due_day", ErrInvalidDay)
	}
	if c.PayAccountID == 0 {
		return Invalid("pay_account_id", ErrMissingAccount)
	}
	if c.Last4 != "" && !last4Re.MatchString(c.Last4) {
		return Invalid("last4", ErrInvalidLast4)
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	if !t.Kind.Valid() {
		return Invalid("kind", ErrInvalidKind)
	}
	if t.Amount.IsNegative() {
		return Invalid("amount", ErrInvalidAmount)
	}
	if !t.Status.Valid() {
		return Invalid("status", ErrInvalidStatus)
	}
	if len(t.Description) > maxDescription {
		return Invalid("description", ErrDescriptionTooLong)
	}
	if err := t.StatementMonth.Validate(); err != nil {
		return Invalid("statement_month", err)
	}

	switch t.Method {
	case MethodBank, MethodCash:
		if t.AccountID == 0 {
			return Invalid("account_id", ErrMissingAccount)
		}
		if t.CardID != 0 {
			return Invalid("card_id", ErrUnexpectedCard)
		}
		if !t.StatementMonth.IsZero() {
			return Invalid("statement_month", ErrUnexpectedStatement)
		}
	case MethodCard:
		if t.CardID == 0 {
			return Invalid("card_id", ErrMissingCard)
		}
		if t.StatementMonth.IsZero() {
			return Invalid("statement_month", ErrMissingStatement)
		}
		if t.AccountID != 0 {
			return Invalid("account_id", ErrUnexpectedAccount)
		}
	case MethodCardPayment:
		if t.AccountID == 0 {
			return Invalid("account_id", ErrMissingAccount)
		}
		if t.CardID == 0 {
			return Invalid("card_id", ErrMissingCard)
		}
		if t.Kind != KindExpense {
			return Invalid("kind", ErrInvalidKind)
		}
	default:
		return Invalid("method", ErrInvalidMethod)
	}

	if t.InstallmentsTotal != 0 || t.InstallmentNo != 0 {
		if t.Method != MethodCard || t.InstallmentNo < 1 || t.InstallmentNo > t.InstallmentsTotal {
			return Invalid("installments", ErrInvalidInstallments)
		}
	}
	return nil
}

func (r Recurrence) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if !r.Kind.Valid() {
		return Invalid("kind", ErrInvalidKind)
	}
	if r.Amount.IsNegative() {
		return Invalid("amount", ErrInvalidAmount)
	}
	if !validDay(r.DayOfMonth) {
		return Invalid("day_of_month", ErrInvalidDay)
	}
	if len(r.Description) > maxDescription {
		return Invalid("description", ErrDescriptionTooLong)
	}
	switch r.Method {
	case MethodBank, MethodCash:
		if r.AccountID == 0 {
			return Invalid("account_id", ErrMissingAccount)
		}
		if r.CardID != 0 {
			return Invalid("card_id", ErrUnexpectedCard)
		}
	case MethodCard:
		if r.CardID == 0 {
			return Invalid("card_id", ErrMissingCard)
		}
		if r.AccountID != 0 {
			return Invalid("account_id", ErrUnexpectedAccount)
		}
	default:
		return Invalid("method", ErrInvalidMethod)
	}
	return nil
}

func (t Transfer) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	if !t.Amount.IsPositive() {
		return Invalid("amount", ErrInvalidAmount)
	}
	if t.FromAccountID == 0 {
		return Invalid("from_account_id", ErrMissingAccount)
	}
	if t.ToAccountID == 0 {
		return Invalid("to_account_id", ErrMissingAccount)
	}
	if t.FromAccountID == t.ToAccountID {
		return Invalid("to_account_id", ErrSameAccount)
	}
	if !t.Status.Valid() {
		return Invalid("status", ErrInvalidStatus)
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if g.TargetAmount.IsNegative() {
		return Invalid("target_amount", ErrInvalidAmount)
	}
	if err := g.StartDate.Validate(); err != nil {
		return Invalid("start_date", err)
	}
	if err := g.EndDate.Validate(); err != nil {
		return Invalid("end_date", err)
	}
	if !g.EndDate.After(g.StartDate.Time) {
		return Invalid("end_date", ErrInvalidGoalRange)
	}
	return nil
}

func (r CategoryRule) Validate() error {
	if NormalizeCategory(r.Category) == "" {
		return Invalid("category", ErrEmptyCategory)
	}
	if !r.Class.Valid() {
		return Invalid("class", ErrInvalidClass)
	}
	return nil
}
