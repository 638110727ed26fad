package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SavingsStatus is a state of the savings account lifecycle.
type SavingsStatus string

// Savings statuses.
const (
	SavingsPendingApproval SavingsStatus = "pending_approval"
	SavingsActive          SavingsStatus = "active"
	SavingsClosed          SavingsStatus = "closed"
)

var savingsTransitions = map[SavingsStatus]SavingsStatus{
	SavingsPendingApproval: SavingsActive,
	SavingsActive:          SavingsClosed,
}

// CanTransitionTo returns true if the lifecycle permits moving from s to next.
func (s SavingsStatus) CanTransitionTo(next SavingsStatus) bool {
	t, ok := savingsTransitions[s]
	return ok && t == next
}

// AccountType is the savings product.
type AccountType string

// Supported savings products.
const (
	AccountRegular AccountType = "regular"
	AccountFixed   AccountType = "fixed"
	AccountTarget  AccountType = "target"
)

// ParseAccountType converts s into an AccountType.
func ParseAccountType(s string) (AccountType, error) {
	switch t := AccountType(s); t {
	case AccountRegular, AccountFixed, AccountTarget:
		return t, nil
	}

	return "", ErrInvalidAccountType
}

// SavingsAccount holds a client's savings balance summary.
type SavingsAccount struct {
	ID               uuid.UUID        `json:"id"`
	ClientID         string           `json:"client_id"`
	AccountType      AccountType      `json:"account_type"`
	Balance          decimal.Decimal  `json:"balance"`
	TotalDeposits    decimal.Decimal  `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal  `json:"total_withdrawals"`
	InterestEarned   decimal.Decimal  `json:"interest_earned"`
	TargetAmount     *decimal.Decimal `json:"target_amount,omitempty"`
	MaturityDate     *time.Time       `json:"maturity_date,omitempty"`
	Status           SavingsStatus    `json:"status"`
	CreatedBy        string           `json:"created_by"`
	ApprovedBy       string           `json:"approved_by,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty"`
	ClosedAt         *time.Time       `json:"closed_at,omitempty"`
	Version          int32            `json:"version"`
}

// CreateSavingsParams is the input data to open a savings account.
type CreateSavingsParams struct {
	ClientID     string
	AccountType  AccountType
	TargetAmount *decimal.Decimal
	MaturityDate *time.Time
}

// SavingsTxParams is the input data of a deposit, withdrawal or interest posting.
type SavingsTxParams struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Reference string
}

// ListSavingsParams filters savings accounts. Empty fields match everything.
type ListSavingsParams struct {
	ClientID string
	Status   SavingsStatus
	Limit    int32
	Offset   int32
}

// SavingsTxResult is the result of a deposit, withdrawal or interest posting.
type SavingsTxResult struct {
	Account SavingsAccount `json:"account"`
	Entry   LedgerEntry    `json:"entry"`
}
