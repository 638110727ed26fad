// Package web defines common components for a web application.
package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Response holds the common response type for all APIs.
type Response struct {
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	Category string `json:"category,omitempty"`
}

// Error wraps a given err into json friendly response.
func Error(err error) Response {
	return Response{Error: err.Error()}
}

// CategorizedError wraps a given err together with its message category.
func CategorizedError(err error, category string) Response {
	return Response{Error: err.Error(), Category: category}
}

// GetErrorMsg returns human readable suffix for the failed validation tag.
func GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return " field is required"
	case "min":
		return fmt.Sprintf(" must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf(" must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf(" must be greater than %s", fe.Param())
	case "frequency":
		return " must be one of daily, weekly, biweekly, monthly"
	case "money":
		return " must be a positive amount with at most 2 decimal places"
	case "method":
		return " is not a supported repayment method"
	case "account_type":
		return " is not a supported account type"
	case "role":
		return " is not a supported role"
	case "uuid":
		return " must be a valid UUID"
	case "oneof":
		return fmt.Sprintf(" must be one of %s", fe.Param())
	}

	return " is invalid"
}

// ValidationMessage renders the first failed field of err, if err is a validation error.
func ValidationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return ve[0].Field() + GetErrorMsg(ve[0])
	}

	return "invalid request body"
}

// StatusFor returns the HTTP status code of an error message category.
func StatusFor(category string) int {
	switch category {
	case "field":
		return http.StatusBadRequest
	case "account":
		return http.StatusUnprocessableEntity
	case "state":
		return http.StatusConflict
	case "auth":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "halted":
		return http.StatusLocked
	}

	return http.StatusInternalServerError
}
