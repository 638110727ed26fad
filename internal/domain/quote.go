package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateTier maps a contiguous range of period counts of one frequency to a periodic rate.
type RateTier struct {
	Frequency    Frequency       `json:"frequency"`
	MinPeriods   int             `json:"min_periods"`
	MaxPeriods   int             `json:"max_periods,omitempty"` // 0 means unbounded
	PeriodicRate decimal.Decimal `json:"periodic_rate"`
}

// Unbounded returns true if the tier catches every count above MinPeriods.
func (t RateTier) Unbounded() bool {
	return t.MaxPeriods == 0
}

// Contains returns true if n falls inside the tier.
func (t RateTier) Contains(n int) bool {
	return n >= t.MinPeriods && (t.Unbounded() || n <= t.MaxPeriods)
}

// LoanQuote holds the pricing terms computed for a loan request.
type LoanQuote struct {
	Principal              decimal.Decimal `json:"principal"`
	Frequency              Frequency       `json:"frequency"`
	DurationValue          int             `json:"duration_value"`
	PeriodicRate           decimal.Decimal `json:"periodic_rate"`
	AnnualRate             decimal.Decimal `json:"annual_rate"`
	DurationMonths         decimal.Decimal `json:"duration_months"`
	NumberOfInstallments   int             `json:"number_of_installments"`
	InstallmentAmount      decimal.Decimal `json:"installment_amount"`
	FinalInstallmentAmount decimal.Decimal `json:"final_installment_amount"`
	TotalInterest          decimal.Decimal `json:"total_interest"`
	TotalRepayment         decimal.Decimal `json:"total_repayment"`
}

// Installment is one scheduled payment of a loan.
type Installment struct {
	Number        int             `json:"number"`
	DueDate       time.Time       `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
	CumulativeDue decimal.Decimal `json:"cumulative_due"`
}
