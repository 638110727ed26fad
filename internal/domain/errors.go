// Package domain provides definitions of all entities.
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount indicates a non-positive or malformed money input.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidDuration indicates a non-positive loan duration.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidPeriodCount indicates a period count below one.
	ErrInvalidPeriodCount = errors.New("invalid period count")
	// ErrInvalidFrequency indicates an unsupported payment frequency.
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrIncompleteGuarantorInfo indicates missing guarantor fields at application time.
	ErrIncompleteGuarantorInfo = errors.New("incomplete guarantor info")
	// ErrInvalidAccountType indicates an unsupported savings account type.
	ErrInvalidAccountType = errors.New("invalid account type")
	// ErrInvalidRepaymentMethod indicates an unsupported repayment method.
	ErrInvalidRepaymentMethod = errors.New("invalid repayment method")
	// ErrMissingReason indicates that a transition requires a reason.
	ErrMissingReason = errors.New("reason is required")
	// ErrInvalidSavingsTarget indicates an invalid target amount or maturity date.
	ErrInvalidSavingsTarget = errors.New("invalid savings target")

	// ErrInvalidStateTransition indicates that the current state does not permit the transition.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrConcurrentModification indicates that the record changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")
	// ErrUnauthorized indicates that the caller lacks the role required for the transition.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientBalance indicates that a debit would overdraw the account.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrOverpaymentRejected indicates that a repayment exceeds the outstanding balance.
	ErrOverpaymentRejected = errors.New("overpayment rejected")
	// ErrBalanceNotZero indicates that the account still holds funds.
	ErrBalanceNotZero = errors.New("balance is not zero")
	// ErrAlreadyReversed indicates that the entry was reversed already or is itself a reversal.
	ErrAlreadyReversed = errors.New("entry cannot be reversed")
	// ErrLedgerCorrupted indicates a broken balance chain. Posting to the account is halted.
	ErrLedgerCorrupted = errors.New("ledger corrupted")

	// ErrLoanNotFound indicates that the loan is not found.
	ErrLoanNotFound = errors.New("loan not found")
	// ErrSavingsNotFound indicates that the savings account is not found.
	ErrSavingsNotFound = errors.New("savings account not found")
	// ErrAccountNotFound indicates that the ledger account is not found.
	ErrAccountNotFound = errors.New("ledger account not found")
	// ErrEntryNotFound indicates that the ledger entry is not found.
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrAccountExists indicates that a ledger is already open for the account.
	ErrAccountExists = errors.New("ledger account already exists")

	// ErrInvalidRateTiers indicates a malformed rate schedule.
	ErrInvalidRateTiers = errors.New("invalid rate tiers")
)

// GuarantorError lists the guarantor fields missing from an application.
type GuarantorError struct {
	Missing []string
}

func (e *GuarantorError) Error() string {
	return "incomplete guarantor info: missing " + strings.Join(e.Missing, ", ")
}

func (e *GuarantorError) Unwrap() error {
	return ErrIncompleteGuarantorInfo
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	AccountID uuid.UUID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// TransitionError describes a rejected state transition.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s cannot go from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// Category groups errors by how a client should present them.
type Category string

// Error categories.
const (
	CategoryField    Category = "field"
	CategoryAccount  Category = "account"
	CategoryState    Category = "state"
	CategoryAuth     Category = "auth"
	CategoryNotFound Category = "not_found"
	CategoryHalted   Category = "halted"
	CategoryInternal Category = "internal"
)

var categories = []struct {
	err      error
	category Category
}{
	{ErrInvalidAmount, CategoryField},
	{ErrInvalidDuration, CategoryField},
	{ErrInvalidPeriodCount, CategoryField},
	{ErrInvalidFrequency, CategoryField},
	{ErrIncompleteGuarantorInfo, CategoryField},
	{ErrInvalidAccountType, CategoryField},
	{ErrInvalidRepaymentMethod, CategoryField},
	{ErrMissingReason, CategoryField},
	{ErrInvalidSavingsTarget, CategoryField},
	{ErrInsufficientBalance, CategoryAccount},
	{ErrOverpaymentRejected, CategoryAccount},
	{ErrBalanceNotZero, CategoryAccount},
	{ErrAlreadyReversed, CategoryAccount},
	{ErrInvalidStateTransition, CategoryState},
	{ErrConcurrentModification, CategoryState},
	{ErrAccountExists, CategoryState},
	{ErrUnauthorized, CategoryAuth},
	{ErrLoanNotFound, CategoryNotFound},
	{ErrSavingsNotFound, CategoryNotFound},
	{ErrAccountNotFound, CategoryNotFound},
	{ErrEntryNotFound, CategoryNotFound},
	{ErrLedgerCorrupted, CategoryHalted},
}

// CategoryOf returns the message category of err.
func CategoryOf(err error) Category {
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.category
		}
	}

	return CategoryInternal
}
