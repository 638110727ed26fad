package web

import (
	"errors"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	testCases := map[string]int{
		"field":     http.StatusBadRequest,
		"account":   http.StatusUnprocessableEntity,
		"state":     http.StatusConflict,
		"auth":      http.StatusForbidden,
		"not_found": http.StatusNotFound,
		"halted":    http.StatusLocked,
		"internal":  http.StatusInternalServerError,
		"":          http.StatusInternalServerError,
	}

	for category, want := range testCases {
		require.Equal(t, want, StatusFor(category), category)
	}
}

func TestValidationMessage(t *testing.T) {
	type request struct {
		Amount string `validate:"required"`
		Limit  int    `validate:"min=1,max=100"`
	}

	v := validator.New()

	err := v.Struct(request{Limit: 5})
	require.Equal(t, "Amount field is required", ValidationMessage(err))

	err = v.Struct(request{Amount: "1", Limit: 500})
	require.Equal(t, "Limit must be at most 100", ValidationMessage(err))

	require.Equal(t, "invalid request body", ValidationMessage(errors.New("unexpected EOF")))
}

func TestCategorizedError(t *testing.T) {
	res := CategorizedError(errors.New("insufficient balance"), "account")
	require.Equal(t, Response{Error: "insufficient balance", Category: "account"}, res)
}
