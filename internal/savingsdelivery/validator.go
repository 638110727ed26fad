package savingsdelivery

import (
	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-playground/validator/v10"
)

// ValidAccountType validates whether the savings product is supported.
var ValidAccountType validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		_, err := domain.ParseAccountType(s)
		return err == nil
	}

	return false
}
