package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindPayment    RecordKind = "payment"
	KindSession    RecordKind = "session"
	KindCommission RecordKind = "commission"
	KindExpense    RecordKind = "expense"
)

// DeletionOrder lists the record kinds in archival deletion order:
// commissions hold a foreign reference to payments and must go first.
var DeletionOrder = []RecordKind{KindCommission, KindPayment, KindSession, KindExpense}

type (
	RecordKind string

	// Period identifies one calendar month of data.
	Period struct {
		Year  int
		Month int // 1-12
	}

	Money struct {
		Cents int64
	}

	// Payment is money actually received from a client. Only payments
	// contribute to gross revenue.
	Payment struct {
		ID         int64
		Date       time.Time
		Amount     Money
		ClientName string
		ArtistName string
		Method     string // payment method tag, may be empty
		Notes      string
	}

	// Session is scheduled work. Session amounts never enter revenue
	// totals; the linked payment carries the money.
	Session struct {
		ID         int64
		Date       time.Time
		Amount     Money
		ClientName string
		ArtistName string
		Notes      string
	}

	// Commission is an artist share computed from one payment.
	Commission struct {
		ID         int64
		Date       time.Time
		Amount     Money
		ArtistName string
		PaymentID  int64
		Percent    float64
		Notes      string
	}

	Expense struct {
		ID       int64
		Date     time.Time
		Amount   Money
		Category string
		Method   string
		Notes    string
	}

	// RecordSet holds all live records of one period, the unit the
	// archival run queries, snapshots and deletes.
	RecordSet struct {
		Payments    []Payment    `json:"payments"`
		Sessions    []Session    `json:"sessions"`
		Commissions []Commission `json:"commissions"`
		Expenses    []Expense    `json:"expenses"`
	}

	// RecordCounts is the per-kind size of a RecordSet, reported in
	// run outcomes and ledger entries.
	RecordCounts struct {
		Payments    int `json:"payments"`
		Sessions    int `json:"sessions"`
		Commissions int `json:"commissions"`
		Expenses    int `json:"expenses"`
	}
)

var (
	ErrInvalidPeriod = errors.New("invalid period")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

// ValidPeriod builds a Period and validates it in one step.
func ValidPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d out of range", ErrInvalidPeriod, p.Month)
	}
	if p.Year < 2000 || p.Year > 2100 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidPeriod, p.Year)
	}
	return nil
}

// Contains reports whether t falls inside the calendar month.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && int(t.Month()) == p.Month
}

// Start returns midnight UTC on the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the start of the following month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Previous returns the preceding calendar month.
func (p Period) Previous() Period {
	t := p.Start().AddDate(0, -1, 0)
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// PeriodOf returns the period a record date belongs to.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (k RecordKind) Valid() bool {
	switch k {
	case KindPayment, KindSession, KindCommission, KindExpense:
		return true
	}
	return false
}

func (rs RecordSet) Counts() RecordCounts {
	return RecordCounts{
		Payments:    len(rs.Payments),
		Sessions:    len(rs.Sessions),
		Commissions: len(rs.Commissions),
		Expenses:    len(rs.Expenses),
	}
}

// Empty reports whether the period had no activity at all. An empty
// month still archives into a valid (empty) statement.
func (rs RecordSet) Empty() bool {
	return rs.Counts().Total() == 0
}

func (c RecordCounts) Total() int {
	return c.Payments + c.Sessions + c.Commissions + c.Expenses
}

func (p Payment) Validate() error {
	if p.Date.IsZero() {
		return ErrInvalidDate
	}
	if p.Amount.Cents <= 0 {
		return fmt.Errorf("%w: payment amount must be positive", ErrInvalidAmount)
	}
	if len(p.Notes) > 500 {
		return errors.New("notes too long (max 500 characters)")
	}
	return nil
}

func (s Session) Validate() error {
	if s.Date.IsZero() {
		return ErrInvalidDate
	}
	if s.Amount.Cents < 0 {
		return fmt.Errorf("%w: session amount cannot be negative", ErrInvalidAmount)
	}
	if strings.TrimSpace(s.ClientName) == "" {
		return errors.New("session requires a client")
	}
	return nil
}

func (c Commission) Validate() error {
	if c.Date.IsZero() {
		return ErrInvalidDate
	}
	if c.Amount.Cents <= 0 {
		return fmt.Errorf("%w: commission amount must be positive", ErrInvalidAmount)
	}
	if c.PaymentID <= 0 {
		return errors.New("commission requires a payment reference")
	}
	if c.Percent < 0 || c.Percent > 100 {
		return errors.New("commission percent out of range")
	}
	return nil
}

func (e Expense) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if e.Amount.Cents <= 0 {
		return fmt.Errorf("%w: expense amount must be positive", ErrInvalidAmount)
	}
	return nil
}
