package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the cadence of loan payments.
type Frequency string

// Supported frequencies.
const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

// Frequencies holds all the supported frequencies.
var Frequencies = []Frequency{Daily, Weekly, Biweekly, Monthly}

// MaxDurationValue is the hard ceiling on the installments of any loan.
// Rate schedules may only configure lower limits.
const MaxDurationValue = 3650

// ParseFrequency converts s into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if !f.Valid() {
		return "", ErrInvalidFrequency
	}

	return f, nil
}

// Valid returns true if the frequency is supported.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly:
		return true
	}

	return false
}

// PeriodsPerMonth is the number of payment periods that make up one month.
func (f Frequency) PeriodsPerMonth() decimal.Decimal {
	switch f {
	case Daily:
		return decimal.NewFromInt(30)
	case Weekly:
		return decimal.NewFromInt(4)
	case Biweekly:
		return decimal.NewFromInt(2)
	}

	return decimal.NewFromInt(1)
}

// PeriodsPerYear is the number of payment periods in a year.
func (f Frequency) PeriodsPerYear() decimal.Decimal {
	switch f {
	case Daily:
		return decimal.NewFromInt(365)
	case Weekly:
		return decimal.NewFromInt(52)
	case Biweekly:
		return decimal.NewFromInt(26)
	}

	return decimal.NewFromInt(12)
}

// DueDate returns the date k periods after start.
func (f Frequency) DueDate(start time.Time, k int) time.Time {
	switch f {
	case Daily:
		return start.AddDate(0, 0, k)
	case Weekly:
		return start.AddDate(0, 0, 7*k)
	case Biweekly:
		return start.AddDate(0, 0, 14*k)
	}

	return start.AddDate(0, k, 0)
}
