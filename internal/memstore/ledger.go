// Package memstore provides in-memory repositories for development and tests.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/google/uuid"
)

// Ledger is an in-memory ledger repository.
type Ledger struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]domain.LedgerAccount
	entries    map[uuid.UUID][]domain.LedgerEntry
	// reversedBy maps an entry to the reversals posted against it.
	reversedBy map[uuid.UUID][]uuid.UUID
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:   make(map[uuid.UUID]domain.LedgerAccount),
		entries:    make(map[uuid.UUID][]domain.LedgerEntry),
		reversedBy: make(map[uuid.UUID][]uuid.UUID),
	}
}

// CreateAccount stores the ledger head a.
func (m *Ledger) CreateAccount(_ context.Context, a domain.LedgerAccount) (domain.LedgerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.AccountID]; ok {
		return domain.LedgerAccount{}, domain.ErrAccountExists
	}

	m.accounts[a.AccountID] = a

	return a, nil
}

// GetAccount returns the ledger head of accountID.
func (m *Ledger) GetAccount(_ context.Context, accountID uuid.UUID) (domain.LedgerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return a, domain.ErrAccountNotFound
	}

	return a, nil
}

// Append stores e if the account head still ends right before it.
func (m *Ledger) Append(_ context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[e.AccountID]
	if !ok {
		return domain.LedgerEntry{}, domain.ErrAccountNotFound
	}

	if a.Halted {
		return domain.LedgerEntry{}, domain.ErrLedgerCorrupted
	}

	if a.LastSequence != e.Sequence-1 || !a.Balance.Equal(e.BalanceBefore) {
		return domain.LedgerEntry{}, domain.ErrConcurrentModification
	}

	m.entries[e.AccountID] = append(m.entries[e.AccountID], e)

	a.LastSequence = e.Sequence
	a.Balance = e.BalanceAfter
	m.accounts[e.AccountID] = a

	if e.ReversesID != nil {
		m.reversedBy[*e.ReversesID] = append(m.reversedBy[*e.ReversesID], e.ID)
	}

	return e, nil
}

// ListEntries returns up to limit entries of accountID with a sequence above afterSequence.
func (m *Ledger) ListEntries(_ context.Context, accountID uuid.UUID, afterSequence int64, limit int32) ([]domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.entries[accountID]
	items := []domain.LedgerEntry{}

	for _, e := range all {
		if e.Sequence <= afterSequence {
			continue
		}

		if int32(len(items)) == limit {
			break
		}

		items = append(items, e)
	}

	return items, nil
}

// GetEntry returns the entry entryID of accountID.
func (m *Ledger) GetEntry(_ context.Context, accountID, entryID uuid.UUID) (domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries[accountID] {
		if e.ID == entryID {
			return e, nil
		}
	}

	return domain.LedgerEntry{}, domain.ErrEntryNotFound
}

// IsReversed reports whether entryID has a reversal that was not reversed itself.
func (m *Ledger) IsReversed(_ context.Context, entryID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.reversedBy[entryID] {
		if len(m.reversedBy[r]) == 0 {
			return true, nil
		}
	}

	return false, nil
}

// DeleteAccount removes the ledger head of accountID unless entries were posted to it.
func (m *Ledger) DeleteAccount(_ context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}

	if a.LastSequence != 0 {
		return fmt.Errorf("%w: ledger %s has entries", domain.ErrInvalidStateTransition, accountID)
	}

	delete(m.accounts, accountID)

	return nil
}

// Halt marks accountID as corrupted. Appends fail from then on.
func (m *Ledger) Halt(_ context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}

	a.Halted = true
	m.accounts[accountID] = a

	return nil
}
