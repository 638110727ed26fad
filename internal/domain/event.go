package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names a domain event.
type EventType string

// Domain events consumed by the notification collaborator.
const (
	EventLoanApplied      EventType = "LoanApplied"
	EventLoanApproved     EventType = "LoanApproved"
	EventLoanRejected     EventType = "LoanRejected"
	EventLoanDisbursed    EventType = "LoanDisbursed"
	EventRepaymentPosted  EventType = "RepaymentPosted"
	EventLoanCompleted    EventType = "LoanCompleted"
	EventLoanDefaulted    EventType = "LoanDefaulted"
	EventSavingsCreated   EventType = "SavingsCreated"
	EventSavingsApproved  EventType = "SavingsApproved"
	EventDepositPosted    EventType = "DepositPosted"
	EventWithdrawalPosted EventType = "WithdrawalPosted"
	EventInterestPosted   EventType = "InterestPosted"
	EventSavingsClosed    EventType = "SavingsClosed"
	EventEntryReversed    EventType = "EntryReversed"
)

// Event carries enough state for a notification to be rendered without re-querying.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       EventType       `json:"type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	ClientID   string          `json:"client_id,omitempty"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance"`
	Actor      string          `json:"actor"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent returns an event stamped with a fresh ID and the current time.
func NewEvent(t EventType, entityID uuid.UUID, actor string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		EntityID:   entityID,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
	}
}
