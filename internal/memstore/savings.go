package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/google/uuid"
)

// Savings is an in-memory savings account repository.
type Savings struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]domain.SavingsAccount
}

// NewSavings returns an empty Savings.
func NewSavings() *Savings {
	return &Savings{accounts: make(map[uuid.UUID]domain.SavingsAccount)}
}

// Create stores a with version 1.
func (m *Savings) Create(_ context.Context, a domain.SavingsAccount) (domain.SavingsAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; ok {
		return domain.SavingsAccount{}, domain.ErrConcurrentModification
	}

	a.Version = 1
	m.accounts[a.ID] = a

	return a, nil
}

// Get returns the savings account id.
func (m *Savings) Get(_ context.Context, id uuid.UUID) (domain.SavingsAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return a, domain.ErrSavingsNotFound
	}

	return a, nil
}

// Update replaces the account if its stored version equals a.Version and bumps the version.
func (m *Savings) Update(_ context.Context, a domain.SavingsAccount) (domain.SavingsAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.accounts[a.ID]
	if !ok {
		return domain.SavingsAccount{}, domain.ErrSavingsNotFound
	}

	if cur.Version != a.Version {
		return domain.SavingsAccount{}, domain.ErrConcurrentModification
	}

	a.Version++
	m.accounts[a.ID] = a

	return a, nil
}

// List returns the accounts matching arg ordered by creation time.
func (m *Savings) List(_ context.Context, arg domain.ListSavingsParams) ([]domain.SavingsAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := []domain.SavingsAccount{}

	for _, a := range m.accounts {
		if arg.ClientID != "" && a.ClientID != arg.ClientID {
			continue
		}

		if arg.Status != "" && a.Status != arg.Status {
			continue
		}

		items = append(items, a)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}

		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	return page(items, arg.Limit, arg.Offset), nil
}
