package rateschedule

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type fileTier struct {
	MinPeriods   int    `mapstructure:"min_periods"`
	MaxPeriods   int    `mapstructure:"max_periods"`
	PeriodicRate string `mapstructure:"periodic_rate"`
}

type file struct {
	Tiers      map[string][]fileTier `mapstructure:"tiers"`
	MaxPeriods map[string]int        `mapstructure:"max_periods"`
}

// Load reads the rate tiers from a YAML file.
func Load(path string) (*Schedule, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rate schedule: %w", err)
	}

	var f file
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode rate schedule: %w", err)
	}

	var tiers []domain.RateTier

	for name, fts := range f.Tiers {
		freq, err := domain.ParseFrequency(name)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown frequency %q", domain.ErrInvalidRateTiers, name)
		}

		for _, ft := range fts {
			rate, err := decimal.NewFromString(ft.PeriodicRate)
			if err != nil {
				return nil, fmt.Errorf("%w: %s rate %q: %v", domain.ErrInvalidRateTiers, name, ft.PeriodicRate, err)
			}

			tiers = append(tiers, domain.RateTier{
				Frequency:    freq,
				MinPeriods:   ft.MinPeriods,
				MaxPeriods:   ft.MaxPeriods,
				PeriodicRate: rate,
			})
		}
	}

	maxPeriods := make(map[domain.Frequency]int, len(f.MaxPeriods))

	for name, n := range f.MaxPeriods {
		freq, err := domain.ParseFrequency(name)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown frequency %q", domain.ErrInvalidRateTiers, name)
		}

		maxPeriods[freq] = n
	}

	return New(tiers, maxPeriods)
}

func tier(f domain.Frequency, min, max int, rate string) domain.RateTier {
	return domain.RateTier{
		Frequency:    f,
		MinPeriods:   min,
		MaxPeriods:   max,
		PeriodicRate: decimal.RequireFromString(rate),
	}
}

// DefaultTiers returns the shipped rate table. configs/rate_schedule.yaml carries the same values.
func DefaultTiers() []domain.RateTier {
	return []domain.RateTier{
		tier(domain.Daily, 1, 30, "0.005"),
		tier(domain.Daily, 31, 90, "0.0045"),
		tier(domain.Daily, 91, 180, "0.004"),
		tier(domain.Daily, 181, 0, "0.0035"),

		tier(domain.Weekly, 1, 4, "0.02"),
		tier(domain.Weekly, 5, 12, "0.0175"),
		tier(domain.Weekly, 13, 26, "0.015"),
		tier(domain.Weekly, 27, 0, "0.0125"),

		tier(domain.Biweekly, 1, 2, "0.035"),
		tier(domain.Biweekly, 3, 6, "0.03"),
		tier(domain.Biweekly, 7, 12, "0.0275"),
		tier(domain.Biweekly, 13, 0, "0.025"),

		tier(domain.Monthly, 1, 3, "0.07"),
		tier(domain.Monthly, 4, 6, "0.06"),
		tier(domain.Monthly, 7, 12, "0.05"),
		tier(domain.Monthly, 13, 0, "0.04"),
	}
}

// DefaultMaxPeriods returns the shipped installment caps, five years for every frequency.
func DefaultMaxPeriods() map[domain.Frequency]int {
	return map[domain.Frequency]int{
		domain.Daily:    1825,
		domain.Weekly:   260,
		domain.Biweekly: 130,
		domain.Monthly:  60,
	}
}

// Default returns the schedule built from DefaultTiers and DefaultMaxPeriods.
func Default() *Schedule {
	s, err := New(DefaultTiers(), nil)
	if err != nil {
		panic(err)
	}

	return s
}
