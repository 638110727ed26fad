package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is a state of the loan lifecycle.
type LoanStatus string

// Loan statuses. LoanOverdue is never stored, it is derived on read.
const (
	LoanDraft           LoanStatus = "draft"
	LoanPendingApproval LoanStatus = "pending_approval"
	LoanApproved        LoanStatus = "approved"
	LoanRejected        LoanStatus = "rejected"
	LoanDisbursed       LoanStatus = "disbursed"
	LoanActive          LoanStatus = "active"
	LoanCompleted       LoanStatus = "completed"
	LoanDefaulted       LoanStatus = "defaulted"
	LoanOverdue         LoanStatus = "overdue"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanDraft:           {LoanPendingApproval},
	LoanPendingApproval: {LoanApproved, LoanRejected},
	LoanApproved:        {LoanDisbursed},
	LoanDisbursed:       {LoanActive},
	LoanActive:          {LoanCompleted, LoanDefaulted},
}

// CanTransitionTo returns true if the lifecycle permits moving from s to next.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, t := range loanTransitions[s] {
		if t == next {
			return true
		}
	}

	return false
}

// RepaymentMethod is the channel a repayment was received through.
type RepaymentMethod string

// Supported repayment methods.
const (
	MethodCash         RepaymentMethod = "cash"
	MethodMobileMoney  RepaymentMethod = "mobile_money"
	MethodBankTransfer RepaymentMethod = "bank_transfer"
	MethodCheque       RepaymentMethod = "cheque"
)

// ParseRepaymentMethod converts s into a RepaymentMethod.
func ParseRepaymentMethod(s string) (RepaymentMethod, error) {
	switch m := RepaymentMethod(s); m {
	case MethodCash, MethodMobileMoney, MethodBankTransfer, MethodCheque:
		return m, nil
	}

	return "", ErrInvalidRepaymentMethod
}

// Guarantor vouches for a borrower. Every field is mandatory.
type Guarantor struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (g Guarantor) missing(prefix string) []string {
	var fields []string

	if strings.TrimSpace(g.Name) == "" {
		fields = append(fields, prefix+"_name")
	}

	if strings.TrimSpace(g.Phone) == "" {
		fields = append(fields, prefix+"_phone")
	}

	if strings.TrimSpace(g.Address) == "" {
		fields = append(fields, prefix+"_address")
	}

	return fields
}

// Collateral optionally secures a loan.
type Collateral struct {
	Type        string          `json:"type"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description"`
}

// Loan holds a loan application and its repayment state.
type Loan struct {
	ID                 uuid.UUID       `json:"id"`
	ClientID           string          `json:"client_id"`
	PrincipalAmount    decimal.Decimal `json:"principal_amount"`
	Frequency          Frequency       `json:"frequency"`
	DurationValue      int             `json:"duration_value"`
	Purpose            string          `json:"purpose"`
	Guarantor1         Guarantor       `json:"guarantor1"`
	Guarantor2         Guarantor       `json:"guarantor2"`
	Collateral         *Collateral     `json:"collateral,omitempty"`
	Status             LoanStatus      `json:"status"`
	Quote              LoanQuote       `json:"quote"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	RejectionReason    string          `json:"rejection_reason,omitempty"`
	DefaultReason      string          `json:"default_reason,omitempty"`
	AppliedBy          string          `json:"applied_by"`
	ApprovedBy         string          `json:"approved_by,omitempty"`
	DisbursedBy        string          `json:"disbursed_by,omitempty"`
	AppliedAt          time.Time       `json:"applied_at"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty"`
	RejectedAt         *time.Time      `json:"rejected_at,omitempty"`
	DisbursedAt        *time.Time      `json:"disbursed_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	DefaultedAt        *time.Time      `json:"defaulted_at,omitempty"`
	Version            int32           `json:"version"`
}

// ApplyLoanParams is the input data of a loan application.
type ApplyLoanParams struct {
	ClientID        string
	PrincipalAmount decimal.Decimal
	Frequency       Frequency
	DurationValue   int
	Purpose         string
	Guarantor1      Guarantor
	Guarantor2      Guarantor
	Collateral      *Collateral
}

// CheckGuarantors returns a *GuarantorError naming every missing guarantor field.
func (p ApplyLoanParams) CheckGuarantors() error {
	missing := append(p.Guarantor1.missing("guarantor1"), p.Guarantor2.missing("guarantor2")...)
	if len(missing) > 0 {
		return &GuarantorError{Missing: missing}
	}

	return nil
}

// RepayParams is the input data of a loan repayment.
type RepayParams struct {
	LoanID uuid.UUID
	Amount decimal.Decimal
	Method RepaymentMethod
}

// ListLoansParams filters loans. Empty fields match everything.
type ListLoansParams struct {
	ClientID string
	Status   LoanStatus
	Limit    int32
	Offset   int32
}

// RepaymentResult is the result of a repayment.
type RepaymentResult struct {
	Loan  Loan        `json:"loan"`
	Entry LedgerEntry `json:"entry"`
}
