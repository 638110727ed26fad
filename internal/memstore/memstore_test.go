package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLedgerAppendGuard(t *testing.T) {
	ctx := context.Background()
	m := NewLedger()
	id := uuid.New()

	_, err := m.CreateAccount(ctx, domain.LedgerAccount{AccountID: id, Kind: domain.KindSavings})
	require.NoError(t, err)

	_, err = m.CreateAccount(ctx, domain.LedgerAccount{AccountID: id, Kind: domain.KindSavings})
	require.ErrorIs(t, err, domain.ErrAccountExists)

	first := domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     id,
		Sequence:      1,
		Type:          domain.EntryDeposit,
		Amount:        decimal.NewFromInt(100),
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.NewFromInt(100),
	}

	_, err = m.Append(ctx, first)
	require.NoError(t, err)

	// Same sequence again: the head moved on.
	_, err = m.Append(ctx, first)
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	stale := first
	stale.ID = uuid.New()
	stale.Sequence = 2
	_, err = m.Append(ctx, stale)
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	a, err := m.GetAccount(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(1), a.LastSequence)
	require.True(t, a.Balance.Equal(decimal.NewFromInt(100)))

	require.NoError(t, m.Halt(ctx, id))

	next := domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     id,
		Sequence:      2,
		Type:          domain.EntryDeposit,
		Amount:        decimal.NewFromInt(1),
		BalanceBefore: decimal.NewFromInt(100),
		BalanceAfter:  decimal.NewFromInt(101),
	}
	_, err = m.Append(ctx, next)
	require.ErrorIs(t, err, domain.ErrLedgerCorrupted)

	_, err = m.GetAccount(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLedgerListEntries(t *testing.T) {
	ctx := context.Background()
	m := NewLedger()
	id := uuid.New()

	_, err := m.CreateAccount(ctx, domain.LedgerAccount{AccountID: id, Kind: domain.KindSavings})
	require.NoError(t, err)

	balance := decimal.Zero

	for i := int64(1); i <= 5; i++ {
		e := domain.LedgerEntry{
			ID:            uuid.New(),
			AccountID:     id,
			Sequence:      i,
			Type:          domain.EntryDeposit,
			Amount:        decimal.NewFromInt(10),
			BalanceBefore: balance,
			BalanceAfter:  balance.Add(decimal.NewFromInt(10)),
		}
		balance = e.BalanceAfter

		_, err = m.Append(ctx, e)
		require.NoError(t, err)
	}

	got, err := m.ListEntries(ctx, id, 2, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(3), got[0].Sequence)
	require.Equal(t, int64(4), got[1].Sequence)

	got, err = m.ListEntries(ctx, id, 4, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = m.ListEntries(ctx, uuid.New(), 0, 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLoansOptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewLoans()

	l, err := m.Create(ctx, domain.Loan{ID: uuid.New(), ClientID: "c-1", Status: domain.LoanPendingApproval})
	require.NoError(t, err)
	require.Equal(t, int32(1), l.Version)

	stale := l

	l.Status = domain.LoanApproved
	l, err = m.Update(ctx, l)
	require.NoError(t, err)
	require.Equal(t, int32(2), l.Version)

	stale.Status = domain.LoanRejected
	_, err = m.Update(ctx, stale)
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	got, err := m.Get(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanApproved, got.Status)

	_, err = m.Get(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestLoansList(t *testing.T) {
	ctx := context.Background()
	m := NewLoans()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		client := "c-1"
		if i%2 == 1 {
			client = "c-2"
		}

		_, err := m.Create(ctx, domain.Loan{
			ID:        uuid.New(),
			ClientID:  client,
			Status:    domain.LoanPendingApproval,
			AppliedAt: start.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	all, err := m.List(ctx, domain.ListLoansParams{})
	require.NoError(t, err)
	require.Len(t, all, 6)

	for i := 1; i < len(all); i++ {
		require.True(t, all[i-1].AppliedAt.Before(all[i].AppliedAt))
	}

	c1, err := m.List(ctx, domain.ListLoansParams{ClientID: "c-1", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, c1, 2)
	require.Equal(t, start.Add(2*time.Hour), c1[0].AppliedAt)

	none, err := m.List(ctx, domain.ListLoansParams{Status: domain.LoanActive})
	require.NoError(t, err)
	require.Empty(t, none)

	beyond, err := m.List(ctx, domain.ListLoansParams{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, beyond)
}

func TestSavingsOptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewSavings()

	a, err := m.Create(ctx, domain.SavingsAccount{ID: uuid.New(), ClientID: "c-1", Status: domain.SavingsPendingApproval})
	require.NoError(t, err)

	stale := a

	a.Status = domain.SavingsActive
	_, err = m.Update(ctx, a)
	require.NoError(t, err)

	_, err = m.Update(ctx, stale)
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	list, err := m.List(ctx, domain.ListSavingsParams{Status: domain.SavingsActive})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = m.Get(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrSavingsNotFound)
}

func TestLedgerReversalChain(t *testing.T) {
	ctx := context.Background()
	m := NewLedger()
	id := uuid.New()

	_, err := m.CreateAccount(ctx, domain.LedgerAccount{AccountID: id, Kind: domain.KindSavings})
	require.NoError(t, err)

	entry := func(seq int64, before, after int64, reverses *uuid.UUID) domain.LedgerEntry {
		typ := domain.EntryDeposit
		if reverses != nil {
			typ = domain.EntryReversal
		}

		e, err := m.Append(ctx, domain.LedgerEntry{
			ID:            uuid.New(),
			AccountID:     id,
			Sequence:      seq,
			Type:          typ,
			Amount:        decimal.NewFromInt(after - before).Abs(),
			BalanceBefore: decimal.NewFromInt(before),
			BalanceAfter:  decimal.NewFromInt(after),
			ReversesID:    reverses,
		})
		require.NoError(t, err)

		return e
	}

	deposit := entry(1, 0, 40, nil)
	rev := entry(2, 40, 0, &deposit.ID)

	reversed, err := m.IsReversed(ctx, deposit.ID)
	require.NoError(t, err)
	require.True(t, reversed)

	entry(3, 0, 40, &rev.ID)

	reversed, err = m.IsReversed(ctx, deposit.ID)
	require.NoError(t, err)
	require.False(t, reversed)

	reversed, err = m.IsReversed(ctx, rev.ID)
	require.NoError(t, err)
	require.True(t, reversed)

	require.ErrorIs(t, m.DeleteAccount(ctx, id), domain.ErrInvalidStateTransition)
}

func TestLedgerDeleteAccount(t *testing.T) {
	ctx := context.Background()
	m := NewLedger()
	id := uuid.New()

	_, err := m.CreateAccount(ctx, domain.LedgerAccount{AccountID: id, Kind: domain.KindLoan})
	require.NoError(t, err)

	require.NoError(t, m.DeleteAccount(ctx, id))

	_, err = m.GetAccount(ctx, id)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	require.ErrorIs(t, m.DeleteAccount(ctx, id), domain.ErrAccountNotFound)
}
