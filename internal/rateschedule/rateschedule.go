// Package rateschedule maps a payment frequency and commitment length to a periodic interest rate.
package rateschedule

import (
	"fmt"
	"sort"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/shopspring/decimal"
)

// Schedule is an immutable, validated set of rate tiers with the longest
// commitment accepted per frequency.
type Schedule struct {
	tiers map[domain.Frequency][]domain.RateTier
	max   map[domain.Frequency]int
}

// New validates tiers and returns the schedule built from them.
//
// For every supported frequency the tiers must partition [1, ∞) into contiguous,
// non-overlapping ranges with a single unbounded top tier, and rates must not
// increase as the commitment grows.
//
// maxPeriods caps the installments per frequency. Frequencies it leaves out
// take their value from DefaultMaxPeriods. Caps must lie in [1, domain.MaxDurationValue].
func New(tiers []domain.RateTier, maxPeriods map[domain.Frequency]int) (*Schedule, error) {
	s := &Schedule{
		tiers: make(map[domain.Frequency][]domain.RateTier, len(domain.Frequencies)),
		max:   DefaultMaxPeriods(),
	}

	for f, n := range maxPeriods {
		if !f.Valid() {
			return nil, fmt.Errorf("%w: unknown frequency %q", domain.ErrInvalidRateTiers, f)
		}

		if n < 1 || n > domain.MaxDurationValue {
			return nil, fmt.Errorf("%w: %s max periods %d outside [1, %d]",
				domain.ErrInvalidRateTiers, f, n, domain.MaxDurationValue)
		}

		s.max[f] = n
	}

	for _, t := range tiers {
		if !t.Frequency.Valid() {
			return nil, fmt.Errorf("%w: unknown frequency %q", domain.ErrInvalidRateTiers, t.Frequency)
		}

		s.tiers[t.Frequency] = append(s.tiers[t.Frequency], t)
	}

	for _, f := range domain.Frequencies {
		ft := s.tiers[f]
		if len(ft) == 0 {
			return nil, fmt.Errorf("%w: no tiers for %s", domain.ErrInvalidRateTiers, f)
		}

		sort.Slice(ft, func(i, j int) bool { return ft[i].MinPeriods < ft[j].MinPeriods })

		if err := validate(f, ft); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func validate(f domain.Frequency, tiers []domain.RateTier) error {
	if tiers[0].MinPeriods != 1 {
		return fmt.Errorf("%w: %s tiers must start at 1, got %d", domain.ErrInvalidRateTiers, f, tiers[0].MinPeriods)
	}

	one := decimal.NewFromInt(1)

	for i, t := range tiers {
		if t.PeriodicRate.IsNegative() || t.PeriodicRate.GreaterThanOrEqual(one) {
			return fmt.Errorf("%w: %s rate %s out of range", domain.ErrInvalidRateTiers, f, t.PeriodicRate)
		}

		last := i == len(tiers)-1

		if t.Unbounded() != last {
			return fmt.Errorf("%w: %s must have exactly one unbounded tier, on top", domain.ErrInvalidRateTiers, f)
		}

		if last {
			break
		}

		if t.MaxPeriods < t.MinPeriods {
			return fmt.Errorf("%w: %s tier %d-%d is empty", domain.ErrInvalidRateTiers, f, t.MinPeriods, t.MaxPeriods)
		}

		next := tiers[i+1]
		if next.MinPeriods != t.MaxPeriods+1 {
			return fmt.Errorf("%w: %s tiers %d-%d and %d-… are not contiguous",
				domain.ErrInvalidRateTiers, f, t.MinPeriods, t.MaxPeriods, next.MinPeriods)
		}

		if next.PeriodicRate.GreaterThan(t.PeriodicRate) {
			return fmt.Errorf("%w: %s rate increases from %s to %s",
				domain.ErrInvalidRateTiers, f, t.PeriodicRate, next.PeriodicRate)
		}
	}

	return nil
}

// RateFor returns the periodic rate of the tier that contains periodCount.
func (s *Schedule) RateFor(f domain.Frequency, periodCount int) (decimal.Decimal, error) {
	t, err := s.TierFor(f, periodCount)
	if err != nil {
		return decimal.Zero, err
	}

	return t.PeriodicRate, nil
}

// TierFor returns the tier that contains periodCount.
func (s *Schedule) TierFor(f domain.Frequency, periodCount int) (domain.RateTier, error) {
	if !f.Valid() {
		return domain.RateTier{}, domain.ErrInvalidFrequency
	}

	if periodCount < 1 {
		return domain.RateTier{}, domain.ErrInvalidPeriodCount
	}

	tiers := s.tiers[f]

	// First tier starting above periodCount; the one before it contains periodCount.
	i := sort.Search(len(tiers), func(i int) bool { return tiers[i].MinPeriods > periodCount })

	return tiers[i-1], nil
}

// MaxPeriods returns the most installments a loan of frequency f may have.
func (s *Schedule) MaxPeriods(f domain.Frequency) int {
	return s.max[f]
}

// Tiers returns a copy of the tiers of f ordered by MinPeriods.
func (s *Schedule) Tiers(f domain.Frequency) []domain.RateTier {
	return append([]domain.RateTier(nil), s.tiers[f]...)
}

// All returns a copy of every tier grouped by frequency.
func (s *Schedule) All() []domain.RateTier {
	var all []domain.RateTier

	for _, f := range domain.Frequencies {
		all = append(all, s.tiers[f]...)
	}

	return all
}
