package core

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Date is a calendar date at midnight UTC.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) AddDays(n int) Date { return Date{Time: d.AddDate(0, 0, n)} }

// YearMonth returns the month bucket the date falls in.
func (d Date) YearMonth() YearMonth { return NewYearMonth(d.Year(), d.Month()) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return ErrInvalidDate
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// YearMonth is a YYYY-MM bucket. The zero value means "no month".
type YearMonth struct {
	Year  int
	Month time.Month
}

func NewYearMonth(year int, month time.Month) YearMonth {
	return YearMonth{Year: year, Month: month}
}

func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

func (ym YearMonth) Validate() error {
	if ym.IsZero() {
		return nil
	}
	if ym.Month < time.January || ym.Month > time.December || ym.Year < 1 {
		return ErrInvalidMonth
	}
	return nil
}

func (ym YearMonth) String() string {
	if ym.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) index() int { return ym.Year*12 + int(ym.Month) - 1 }

func fromIndex(i int) YearMonth {
	y, m := i/12, i%12
	if m < 0 {
		y, m = y-1, m+12
	}
	return NewYearMonth(y, time.Month(m+1))
}

// AddMonths moves n calendar months, rolling the year over as needed.
func (ym YearMonth) AddMonths(n int) YearMonth { return fromIndex(ym.index() + n) }

// MonthsUntil counts the months from ym through end, both included.
func (ym YearMonth) MonthsUntil(end YearMonth) int { return end.index() - ym.index() + 1 }

func (ym YearMonth) Before(o YearMonth) bool { return ym.index() < o.index() }

// Compare returns -1, 0 or +1.
func (ym YearMonth) Compare(o YearMonth) int {
	switch a, b := ym.index(), o.index(); {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (ym YearMonth) FirstDay() Date { return NewDate(ym.Year, ym.Month, 1) }

func (ym YearMonth) LastDay() Date { return ym.AddMonths(1).FirstDay().AddDays(-1) }

// Day returns the given day inside the month.
func (ym YearMonth) Day(day int) Date { return NewDate(ym.Year, ym.Month, day) }

func (ym YearMonth) Contains(d Date) bool {
	return d.Year() == ym.Year && d.Month() == ym.Month
}

func (ym YearMonth) MarshalJSON() ([]byte, error) {
	if ym.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(ym.String())), nil
}

func (ym *YearMonth) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*ym = YearMonth{}
		return nil
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return ErrInvalidMonth
	}
	if s == "" {
		*ym = YearMonth{}
		return nil
	}
	v, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = v
	return nil
}
