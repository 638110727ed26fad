package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType is the kind of a ledger entry.
type EntryType string

// Ledger entry types.
const (
	EntryDisbursement EntryType = "disbursement"
	EntryRepayment    EntryType = "repayment"
	EntryDeposit      EntryType = "deposit"
	EntryWithdrawal   EntryType = "withdrawal"
	EntryInterest     EntryType = "interest"
	EntryFee          EntryType = "fee"
	EntryReversal     EntryType = "reversal"
)

// Credit returns true if entries of this type increase the balance.
// Reversals take the opposite direction of the entry they reverse.
func (t EntryType) Credit() bool {
	switch t {
	case EntryDisbursement, EntryDeposit, EntryInterest:
		return true
	}

	return false
}

// Valid returns true if the type is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryDisbursement, EntryRepayment, EntryDeposit, EntryWithdrawal,
		EntryInterest, EntryFee, EntryReversal:
		return true
	}

	return false
}

// AccountKind is the owner type of a ledger.
type AccountKind string

// Ledger owners.
const (
	KindLoan    AccountKind = "loan"
	KindSavings AccountKind = "savings"
)

// LedgerAccount is the cached head of an account's ledger.
type LedgerAccount struct {
	AccountID    uuid.UUID       `json:"account_id"`
	Kind         AccountKind     `json:"kind"`
	Balance      decimal.Decimal `json:"balance"`
	LastSequence int64           `json:"last_sequence"`
	Halted       bool            `json:"halted"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LedgerEntry is one immutable balance-affecting record.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Sequence      int64           `json:"sequence"`
	Type          EntryType       `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	RecordedBy    string          `json:"recorded_by"`
	Reference     string          `json:"reference,omitempty"`
	ReversesID    *uuid.UUID      `json:"reverses_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Delta returns the signed change the entry applied to the balance.
func (e LedgerEntry) Delta() decimal.Decimal {
	return e.BalanceAfter.Sub(e.BalanceBefore)
}

// PostEntryParams is the input data to append an entry.
type PostEntryParams struct {
	AccountID  uuid.UUID
	Type       EntryType
	Amount     decimal.Decimal
	RecordedBy string
	Reference  string
}

// ReverseEntryParams is the input data to reverse an entry.
type ReverseEntryParams struct {
	AccountID  uuid.UUID
	EntryID    uuid.UUID
	RecordedBy string
	Reason     string
}
