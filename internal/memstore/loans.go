package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/google/uuid"
)

// Loans is an in-memory loan repository.
type Loans struct {
	mu    sync.RWMutex
	loans map[uuid.UUID]domain.Loan
}

// NewLoans returns an empty Loans.
func NewLoans() *Loans {
	return &Loans{loans: make(map[uuid.UUID]domain.Loan)}
}

// Create stores l with version 1.
func (m *Loans) Create(_ context.Context, l domain.Loan) (domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loans[l.ID]; ok {
		return domain.Loan{}, domain.ErrConcurrentModification
	}

	l.Version = 1
	m.loans[l.ID] = l

	return l, nil
}

// Get returns the loan id.
func (m *Loans) Get(_ context.Context, id uuid.UUID) (domain.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.loans[id]
	if !ok {
		return l, domain.ErrLoanNotFound
	}

	return l, nil
}

// Update replaces the loan if its stored version equals l.Version and bumps the version.
func (m *Loans) Update(_ context.Context, l domain.Loan) (domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.loans[l.ID]
	if !ok {
		return domain.Loan{}, domain.ErrLoanNotFound
	}

	if cur.Version != l.Version {
		return domain.Loan{}, domain.ErrConcurrentModification
	}

	l.Version++
	m.loans[l.ID] = l

	return l, nil
}

// List returns the loans matching arg ordered by application time.
func (m *Loans) List(_ context.Context, arg domain.ListLoansParams) ([]domain.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := []domain.Loan{}

	for _, l := range m.loans {
		if arg.ClientID != "" && l.ClientID != arg.ClientID {
			continue
		}

		if arg.Status != "" && l.Status != arg.Status {
			continue
		}

		items = append(items, l)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].AppliedAt.Equal(items[j].AppliedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}

		return items[i].AppliedAt.Before(items[j].AppliedAt)
	})

	return page(items, arg.Limit, arg.Offset), nil
}

func page[T any](items []T, limit, offset int32) []T {
	if offset > 0 {
		if int(offset) >= len(items) {
			return []T{}
		}

		items = items[offset:]
	}

	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}

	return items
}
