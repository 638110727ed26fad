package loandelivery

import (
	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-playground/validator/v10"
)

// ValidFrequency validates whether the payment frequency is supported.
var ValidFrequency validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		_, err := domain.ParseFrequency(s)
		return err == nil
	}

	return false
}

// ValidMethod validates whether the repayment method is supported.
var ValidMethod validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		_, err := domain.ParseRepaymentMethod(s)
		return err == nil
	}

	return false
}
