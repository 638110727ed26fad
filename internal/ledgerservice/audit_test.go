package ledgerservice

import (
	"context"
	"testing"

	"github.com/go-petr/pet-lender/internal/approval"
	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/eventbus"
	"github.com/go-petr/pet-lender/internal/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ledgerReverser reverses straight on the ledger and counts the calls it gets.
type ledgerReverser struct {
	s     *Service
	calls int
}

func (r *ledgerReverser) ReverseEntry(ctx context.Context, actor domain.Actor, arg domain.ReverseEntryParams) (domain.LedgerEntry, error) {
	r.calls++
	arg.RecordedBy = actor.Username

	return r.s.Reverse(ctx, arg)
}

func TestAuditorReverse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(memstore.NewLedger(), 0)
	recorder := &eventbus.Recorder{}
	savings := &ledgerReverser{s: s}
	a := NewAuditor(s, approval.New(nil), recorder, map[domain.AccountKind]Reverser{domain.KindSavings: savings})

	id := openAccount(t, s, domain.KindSavings)
	deposit := post(t, s, id, domain.EntryDeposit, "300.00")

	officer := domain.Actor{Username: "olivia", Role: domain.RoleOfficer}
	director := domain.Actor{Username: "dana", Role: domain.RoleDirector}

	arg := domain.ReverseEntryParams{AccountID: id, EntryID: deposit.ID, Reason: "duplicate slip"}

	_, err := a.Reverse(ctx, officer, arg)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.Empty(t, recorder.Events())
	require.Zero(t, savings.calls)

	e, err := a.Reverse(ctx, director, arg)
	require.NoError(t, err)
	require.Equal(t, "dana", e.RecordedBy)
	require.True(t, e.BalanceAfter.IsZero())
	require.Equal(t, []domain.EventType{domain.EventEntryReversed}, recorder.Types())

	ev := recorder.Events()[0]
	require.Equal(t, id, ev.EntityID)
	require.Equal(t, "duplicate slip", ev.Reason)
	require.True(t, ev.Amount.Equal(dec("300.00")))

	_, err = a.Reverse(ctx, director, arg)
	require.ErrorIs(t, err, domain.ErrAlreadyReversed)
	require.Len(t, recorder.Events(), 1)
	require.Equal(t, 2, savings.calls)
}

func TestAuditorReverseNeedsOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(memstore.NewLedger(), 0)
	recorder := &eventbus.Recorder{}
	savings := &ledgerReverser{s: s}
	a := NewAuditor(s, approval.New(nil), recorder, map[domain.AccountKind]Reverser{domain.KindSavings: savings})
	director := domain.Actor{Username: "dana", Role: domain.RoleDirector}

	loan := openAccount(t, s, domain.KindLoan)
	disbursement := post(t, s, loan, domain.EntryDisbursement, "500")

	_, err := a.Reverse(ctx, director, domain.ReverseEntryParams{AccountID: loan, EntryID: disbursement.ID, Reason: "typo"})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	balance, err := s.Balance(ctx, loan)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("500")))

	_, err = a.Reverse(ctx, director, domain.ReverseEntryParams{AccountID: uuid.New(), EntryID: uuid.New(), Reason: "typo"})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	require.Zero(t, savings.calls)
	require.Empty(t, recorder.Events())
}

func TestAuditorVerify(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(memstore.NewLedger(), 0)
	a := NewAuditor(s, approval.New(nil), &eventbus.Recorder{}, nil)

	id := openAccount(t, s, domain.KindSavings)
	post(t, s, id, domain.EntryDeposit, "120.50")

	_, err := a.Verify(ctx, domain.Actor{Username: "dana", Role: domain.RoleDirector}, id)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	head, err := a.Verify(ctx, domain.Actor{Username: "root", Role: domain.RoleAdmin}, id)
	require.NoError(t, err)
	require.True(t, head.Balance.Equal(dec("120.50")))
	require.False(t, head.Halted)

	entries := 0
	for _, err := range a.History(ctx, id) {
		require.NoError(t, err)
		entries++
	}
	require.Equal(t, 1, entries)
}
