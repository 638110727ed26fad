// Package pricing computes flat-rate loan quotes and their installment plans.
package pricing

import (
	"fmt"
	"time"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/pkg/moneypkg"
	"github.com/shopspring/decimal"
)

// Rates provides the periodic rate for a frequency and period count, and the
// longest commitment accepted per frequency.
type Rates interface {
	RateFor(f domain.Frequency, periodCount int) (decimal.Decimal, error)
	MaxPeriods(f domain.Frequency) int
}

// Pricer produces loan quotes from a rate schedule. It holds no mutable state.
type Pricer struct {
	rates Rates
}

// New returns a Pricer reading rates from r.
func New(r Rates) *Pricer {
	return &Pricer{rates: r}
}

// Quote prices a loan of principal repaid in durationValue installments of the given frequency.
//
// Interest is flat: principal × periodic rate × installments, rounded half up to cents.
// Every installment but the last equals the rounded share of the total repayment,
// the last one absorbs the rounding residual so the installments sum to the total exactly.
func (p *Pricer) Quote(principal decimal.Decimal, f domain.Frequency, durationValue int) (domain.LoanQuote, error) {
	if err := moneypkg.Check(principal); err != nil {
		return domain.LoanQuote{}, domain.ErrInvalidAmount
	}

	if !f.Valid() {
		return domain.LoanQuote{}, domain.ErrInvalidFrequency
	}

	if durationValue <= 0 {
		return domain.LoanQuote{}, domain.ErrInvalidDuration
	}

	if limit := min(p.rates.MaxPeriods(f), domain.MaxDurationValue); durationValue > limit {
		return domain.LoanQuote{}, fmt.Errorf("%w: %s loans run at most %d installments, asked for %d",
			domain.ErrInvalidDuration, f, limit, durationValue)
	}

	rate, err := p.rates.RateFor(f, durationValue)
	if err != nil {
		return domain.LoanQuote{}, err
	}

	n := decimal.NewFromInt(int64(durationValue))

	totalInterest := moneypkg.Round(principal.Mul(rate).Mul(n))
	totalRepayment := principal.Add(totalInterest)
	installment := moneypkg.Round(totalRepayment.Div(n))
	final := totalRepayment.Sub(installment.Mul(n.Sub(decimal.NewFromInt(1))))

	// More installments than the repayment has cents to spread over.
	if !final.IsPositive() || !installment.IsPositive() {
		return domain.LoanQuote{}, domain.ErrInvalidDuration
	}

	return domain.LoanQuote{
		Principal:              principal,
		Frequency:              f,
		DurationValue:          durationValue,
		PeriodicRate:           rate,
		AnnualRate:             AnnualRate(rate, f),
		DurationMonths:         DurationMonths(f, durationValue),
		NumberOfInstallments:   durationValue,
		InstallmentAmount:      installment,
		FinalInstallmentAmount: final,
		TotalInterest:          totalInterest,
		TotalRepayment:         totalRepayment,
	}, nil
}

// AnnualRate is the display-only annualization of a periodic rate.
func AnnualRate(periodic decimal.Decimal, f domain.Frequency) decimal.Decimal {
	return periodic.Mul(f.PeriodsPerYear())
}

// DurationMonths normalizes a period count into months.
func DurationMonths(f domain.Frequency, durationValue int) decimal.Decimal {
	return decimal.NewFromInt(int64(durationValue)).DivRound(f.PeriodsPerMonth(), 4)
}

// InstallmentFor returns the amount of installment k, counted from 1.
// It returns zero when k is outside the plan.
func InstallmentFor(q domain.LoanQuote, k int) decimal.Decimal {
	switch {
	case k < 1 || k > q.NumberOfInstallments:
		return decimal.Zero
	case k == q.NumberOfInstallments:
		return q.FinalInstallmentAmount
	}

	return q.InstallmentAmount
}

// Schedule returns the installment plan of q for a loan disbursed at start.
func Schedule(q domain.LoanQuote, start time.Time) []domain.Installment {
	plan := make([]domain.Installment, 0, q.NumberOfInstallments)
	cumulative := decimal.Zero

	for k := 1; k <= q.NumberOfInstallments; k++ {
		amount := InstallmentFor(q, k)
		cumulative = cumulative.Add(amount)

		plan = append(plan, domain.Installment{
			Number:        k,
			DueDate:       q.Frequency.DueDate(start, k),
			Amount:        amount,
			CumulativeDue: cumulative,
		})
	}

	return plan
}

// DueBy returns how much of q should have been repaid by at for a loan disbursed at start.
// An installment is due once its due date has passed.
func DueBy(q domain.LoanQuote, start, at time.Time) decimal.Decimal {
	if q.NumberOfInstallments == 0 {
		return decimal.Zero
	}

	due := 0

	for due < q.NumberOfInstallments && at.After(q.Frequency.DueDate(start, due+1)) {
		due++
	}

	if due == q.NumberOfInstallments {
		return q.TotalRepayment
	}

	return q.InstallmentAmount.Mul(decimal.NewFromInt(int64(due)))
}
