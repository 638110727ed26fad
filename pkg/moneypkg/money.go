// Package moneypkg provides parsing and rounding of monetary amounts.
package moneypkg

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places money is kept with.
const Scale = 2

var (
	// ErrNotANumber indicates that the amount cannot be parsed.
	ErrNotANumber = errors.New("amount is not a number")
	// ErrNotPositive indicates that the amount is zero or negative.
	ErrNotPositive = errors.New("amount must be positive")
	// ErrTooPrecise indicates that the amount has fractions of a cent.
	ErrTooPrecise = errors.New("amount has more than 2 decimal places")
)

// Cent is the smallest representable amount.
var Cent = decimal.New(1, -Scale)

// Parse parses s into a positive amount with at most two decimal places.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrNotANumber
	}

	return d, Check(d)
}

// Check reports whether d is a positive amount with at most two decimal places.
func Check(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrNotPositive
	}

	if !d.Equal(d.Truncate(Scale)) {
		return ErrTooPrecise
	}

	return nil
}

// Round rounds d half up to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// ValidMoney validates that the field is a positive amount string.
var ValidMoney validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		_, err := Parse(s)
		return err == nil
	}

	return false
}
