package ledgerservice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/memstore"
	"github.com/go-petr/pet-lender/pkg/errorspkg"
	"github.com/go-petr/pet-lender/pkg/randompkg"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func openAccount(t *testing.T, s *Service, kind domain.AccountKind) uuid.UUID {
	t.Helper()

	id := uuid.New()

	_, err := s.Open(context.Background(), id, kind)
	require.NoError(t, err)

	return id
}

func post(t *testing.T, s *Service, id uuid.UUID, typ domain.EntryType, amount string) domain.LedgerEntry {
	t.Helper()

	e, err := s.Post(context.Background(), domain.PostEntryParams{
		AccountID:  id,
		Type:       typ,
		Amount:     dec(amount),
		RecordedBy: "teller",
	})
	require.NoError(t, err)

	return e
}

func collect(t *testing.T, s *Service, id uuid.UUID) []domain.LedgerEntry {
	t.Helper()

	var entries []domain.LedgerEntry

	for e, err := range s.History(context.Background(), id) {
		require.NoError(t, err)
		entries = append(entries, e)
	}

	return entries
}

func TestPost(t *testing.T) {
	t.Parallel()

	s := New(memstore.NewLedger(), 0)
	id := openAccount(t, s, domain.KindSavings)

	deposit := post(t, s, id, domain.EntryDeposit, "500")
	require.Equal(t, int64(1), deposit.Sequence)
	require.True(t, deposit.BalanceBefore.IsZero())
	require.True(t, deposit.BalanceAfter.Equal(dec("500")))
	require.Equal(t, "teller", deposit.RecordedBy)

	withdrawal := post(t, s, id, domain.EntryWithdrawal, "120.50")
	require.Equal(t, int64(2), withdrawal.Sequence)
	require.True(t, withdrawal.BalanceBefore.Equal(dec("500")))
	require.True(t, withdrawal.BalanceAfter.Equal(dec("379.50")))

	balance, err := s.Balance(context.Background(), id)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("379.50")))
}

func TestPostRejections(t *testing.T) {
	t.Parallel()

	s := New(memstore.NewLedger(), 0)
	id := openAccount(t, s, domain.KindSavings)
	post(t, s, id, domain.EntryDeposit, "100")

	testCases := []struct {
		name      string
		accountID uuid.UUID
		typ       domain.EntryType
		amount    string
		wantErr   error
	}{
		{name: "ZeroAmount", accountID: id, typ: domain.EntryDeposit, amount: "0", wantErr: domain.ErrInvalidAmount},
		{name: "NegativeAmount", accountID: id, typ: domain.EntryDeposit, amount: "-5", wantErr: domain.ErrInvalidAmount},
		{name: "FractionalCent", accountID: id, typ: domain.EntryDeposit, amount: "0.001", wantErr: domain.ErrInvalidAmount},
		{name: "Overdraw", accountID: id, typ: domain.EntryWithdrawal, amount: "100.01", wantErr: domain.ErrInsufficientBalance},
		{name: "UnknownAccount", accountID: uuid.New(), typ: domain.EntryDeposit, amount: "1", wantErr: domain.ErrAccountNotFound},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Post(context.Background(), domain.PostEntryParams{
				AccountID: tc.accountID,
				Type:      tc.typ,
				Amount:    dec(tc.amount),
			})
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	_, err := s.Post(context.Background(), domain.PostEntryParams{AccountID: id, Type: domain.EntryReversal, Amount: dec("1")})
	require.Error(t, err)

	entries := collect(t, s, id)
	require.Len(t, entries, 1)
}

func TestInsufficientBalanceDetails(t *testing.T) {
	t.Parallel()

	s := New(memstore.NewLedger(), 0)
	id := openAccount(t, s, domain.KindSavings)
	post(t, s, id, domain.EntryDeposit, "1000")

	_, err := s.Post(context.Background(), domain.PostEntryParams{
		AccountID: id,
		Type:      domain.EntryWithdrawal,
		Amount:    dec("1500"),
	})

	var balanceErr *domain.InsufficientBalanceError
	require.True(t, errors.As(err, &balanceErr))
	require.Equal(t, id, balanceErr.AccountID)
	require.True(t, balanceErr.Available.Equal(dec("1000")))
	require.True(t, balanceErr.Requested.Equal(dec("1500")))
}

func randomOps(n int) []domain.PostEntryParams {
	types := []domain.EntryType{
		domain.EntryDeposit, domain.EntryWithdrawal, domain.EntryInterest, domain.EntryFee,
	}

	ops := make([]domain.PostEntryParams, n)
	for i := range ops {
		ops[i] = domain.PostEntryParams{
			Type:       types[randompkg.Intn(len(types))],
			Amount:     randompkg.MoneyAmountBetween(1, 500),
			RecordedBy: randompkg.Owner(),
		}
	}

	return ops
}

func replay(t *testing.T, s *Service, id uuid.UUID, ops []domain.PostEntryParams) []domain.LedgerEntry {
	t.Helper()

	for _, op := range ops {
		op.AccountID = id

		_, err := s.Post(context.Background(), op)
		if err != nil {
			require.ErrorIs(t, err, domain.ErrInsufficientBalance)
		}
	}

	return collect(t, s, id)
}

func TestBalanceChainInvariant(t *testing.T) {
	t.Parallel()

	s := New(memstore.NewLedger(), 7)
	id := openAccount(t, s, domain.KindSavings)

	entries := replay(t, s, id, randomOps(300))
	require.NotEmpty(t, entries)

	prev := decimal.Zero

	for i, e := range entries {
		require.Equal(t, int64(i+1), e.Sequence)
		require.True(t, e.BalanceBefore.Equal(prev))
		require.False(t, e.BalanceAfter.IsNegative())

		if e.Type.Credit() {
			require.True(t, e.BalanceAfter.Equal(e.BalanceBefore.Add(e.Amount)))
		} else {
			require.True(t, e.BalanceAfter.Equal(e.BalanceBefore.Sub(e.Amount)))
		}

		prev = e.BalanceAfter
	}

	head, err := s.Verify(context.Background(), id)
	require.NoError(t, err)
	require.True(t, head.Balance.Equal(prev))
	require.Equal(t, int64(len(entries)), head.LastSequence)
}

func TestReplayIsDeterministic(t *testing.T) {
	t.Parallel()

	ops := randomOps(200)

	s1 := New(memstore.NewLedger(), 0)
	first := replay(t, s1, openAccount(t, s1, domain.KindSavings), ops)

	s2 := New(memstore.NewLedger(), 0)
	second := replay(t, s2, openAccount(t, s2, domain.KindSavings), ops)

	require.Len(t, second, len(first))

	for i := range first {
		require.Equal(t, first[i].Sequence, second[i].Sequence)
		require.Equal(t, first[i].Type, second[i].Type)
		require.True(t, first[i].Amount.Equal(second[i].Amount))
		require.True(t, first[i].BalanceAfter.Equal(second[i].BalanceAfter))
	}
}

func TestHistoryPagesAndRestarts(t *testing.T) {
	t.Parallel()

	s := New(memstore.NewLedger(), 3)
	id := openAccount(t, s, domain.KindSavings)

	for i := 0; i < 10; i++ {
		post(t, s, id, domain.EntryDeposit, "1")
	}

	require.Len(t, collect(t, s, id), 10)
	require.Len(t, collect(t, s, id), 10)

	seen := 0
	for range s.History(context.Background(), id) {
		seen++
		if seen == 4 {
			break
		}
	}
	require.Equal(t, 4, seen)

	empty := openAccount(t, s, domain.KindLoan)
	require.Empty(t, collect(t, s, empty))
}

// corruptingRepo rewrites one stored entry on read.
type corruptingRepo struct {
	*memstore.Ledger
	sequence int64
}

func (r *corruptingRepo) ListEntries(ctx context.Context, accountID uuid.UUID, after int64, limit int32) ([]domain.LedgerEntry, error) {
	entries, err := r.Ledger.ListEntries(ctx, accountID, after, limit)
	for i := range entries {
		if entries[i].Sequence == r.sequence {
			entries[i].BalanceBefore = entries[i].BalanceBefore.Add(dec("1"))
		}
	}

	return entries, err
}

func TestCorruptionHaltsAccount(t *testing.T) {
	t.Parallel()

	repo := &corruptingRepo{Ledger: memstore.NewLedger(), sequence: 3}
	s := New(repo, 2)
	id := openAccount(t, s, domain.KindSavings)

	for i := 0; i < 5; i++ {
		post(t, s, id, domain.EntryDeposit, "10")
	}

	var (
		seen    []int64
		lastErr error
	)

	for e, err := range s.History(context.Background(), id) {
		if err != nil {
			lastErr = err
			break
		}

		seen = append(seen, e.Sequence)
	}

	require.Equal(t, []int64{1, 2}, seen)
	require.ErrorIs(t, lastErr, domain.ErrLedgerCorrupted)

	head, err := s.Account(context.Background(), id)
	require.NoError(t, err)
	require.True(t, head.Halted)

	_, err = s.Post(context.Background(), domain.PostEntryParams{AccountID: id, Type: domain.EntryDeposit, Amount: dec("1")})
	require.ErrorIs(t, err, domain.ErrLedgerCorrupted)

	other := openAccount(t, s, domain.KindSavings)
	post(t, s, other, domain.EntryDeposit, "1")
}

func TestVerifyDetectsStaleHead(t *testing.T) {
	t.Parallel()

	repo := &staleHeadRepo{Ledger: memstore.NewLedger()}
	s := New(repo, 0)
	id := openAccount(t, s, domain.KindSavings)
	post(t, s, id, domain.EntryDeposit, "10")

	repo.stale = true

	head, err := s.Verify(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrLedgerCorrupted)
	require.True(t, head.Halted)

	repo.stale = false

	head, err = s.Account(context.Background(), id)
	require.NoError(t, err)
	require.True(t, head.Halted)
}

// staleHeadRepo reports a cached balance that disagrees with the entries.
type staleHeadRepo struct {
	*memstore.Ledger
	stale bool
}

func (r *staleHeadRepo) GetAccount(ctx context.Context, accountID uuid.UUID) (domain.LedgerAccount, error) {
	a, err := r.Ledger.GetAccount(ctx, accountID)
	if r.stale {
		a.Balance = a.Balance.Add(dec("5"))
	}

	return a, err
}

func TestReverse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(memstore.NewLedger(), 0)
	id := openAccount(t, s, domain.KindSavings)

	deposit := post(t, s, id, domain.EntryDeposit, "300")
	withdrawal := post(t, s, id, domain.EntryWithdrawal, "100")

	rev, err := s.Reverse(ctx, domain.ReverseEntryParams{
		AccountID:  id,
		EntryID:    withdrawal.ID,
		RecordedBy: "director",
		Reason:     "posted twice",
	})
	require.NoError(t, err)
	require.Equal(t, domain.EntryReversal, rev.Type)
	require.Equal(t, &withdrawal.ID, rev.ReversesID)
	require.True(t, rev.BalanceAfter.Equal(dec("300")))

	_, err = s.Reverse(ctx, domain.ReverseEntryParams{AccountID: id, EntryID: withdrawal.ID, Reason: "again"})
	require.ErrorIs(t, err, domain.ErrAlreadyReversed)

	_, err = s.Reverse(ctx, domain.ReverseEntryParams{AccountID: id, EntryID: rev.ID, Reason: "undo"})
	require.ErrorIs(t, err, domain.ErrAlreadyReversed)

	_, err = s.Reverse(ctx, domain.ReverseEntryParams{AccountID: id, EntryID: deposit.ID})
	require.ErrorIs(t, err, domain.ErrMissingReason)

	_, err = s.Reverse(ctx, domain.ReverseEntryParams{AccountID: id, EntryID: uuid.New(), Reason: "x"})
	require.ErrorIs(t, err, domain.ErrEntryNotFound)

	rev, err = s.Reverse(ctx, domain.ReverseEntryParams{AccountID: id, EntryID: deposit.ID, Reason: "wrong client"})
	require.NoError(t, err)
	require.True(t, rev.BalanceAfter.IsZero())

	_, err = s.Verify(ctx, id)
	require.NoError(t, err)
}

func TestReverseCannotOverdraw(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(memstore.NewLedger(), 0)
	id := openAccount(t, s, domain.KindSavings)

	deposit := post(t, s, id, domain.EntryDeposit, "300")
	post(t, s, id, domain.EntryWithdrawal, "250")

	_, err := s.Reverse(ctx, domain.ReverseEntryParams{AccountID: id, EntryID: deposit.ID, Reason: "bounced"})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestConcurrentPostsSameAccount(t *testing.T) {
	t.Parallel()

	s := New(memstore.NewLedger(), 0)
	id := openAccount(t, s, domain.KindSavings)
	post(t, s, id, domain.EntryDeposit, "1000")

	const workers = 50

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := s.Post(context.Background(), domain.PostEntryParams{
				AccountID: id,
				Type:      domain.EntryWithdrawal,
				Amount:    dec("30"),
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	require.Equal(t, 33, accepted)

	balance, err := s.Balance(context.Background(), id)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("10")))

	_, err = s.Verify(context.Background(), id)
	require.NoError(t, err)
}

func TestExclusive(t *testing.T) {
	t.Parallel()

	s := New(memstore.NewLedger(), 0)
	id := openAccount(t, s, domain.KindLoan)

	err := s.Exclusive(context.Background(), id, func(tx *Tx) error {
		if _, err := tx.Post(domain.EntryDisbursement, dec("1000"), "manager", ""); err != nil {
			return err
		}

		if _, err := tx.Post(domain.EntryInterest, dec("60"), "manager", "interest:flat"); err != nil {
			return err
		}

		require.True(t, tx.Balance().Equal(dec("1060")))
		require.Equal(t, int64(2), tx.Account().LastSequence)

		return nil
	})
	require.NoError(t, err)

	errStop := errors.New("stop")
	err = s.Exclusive(context.Background(), id, func(*Tx) error { return errStop })
	require.ErrorIs(t, err, errStop)

	_, err = s.Open(context.Background(), id, domain.KindLoan)
	require.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestExclusiveRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(memstore.NewLedger(), 0)
	id := openAccount(t, s, domain.KindSavings)
	post(t, s, id, domain.EntryDeposit, "100")

	var posted []domain.LedgerEntry

	errStore := errors.New("record not stored")
	err := s.Exclusive(ctx, id, func(tx *Tx) error {
		w, err := tx.Post(domain.EntryWithdrawal, dec("30"), "teller", "")
		require.NoError(t, err)

		d, err := tx.Post(domain.EntryDeposit, dec("50"), "teller", "")
		require.NoError(t, err)

		posted = append(posted, w, d)

		return errStore
	})
	require.ErrorIs(t, err, errStore)

	head, err := s.Account(ctx, id)
	require.NoError(t, err)
	require.True(t, head.Balance.Equal(dec("100")))
	require.False(t, head.Halted)

	entries := collect(t, s, id)
	require.Len(t, entries, 5)

	// Newest first: the deposit is undone before the withdrawal.
	require.Equal(t, domain.EntryReversal, entries[3].Type)
	require.Equal(t, posted[1].ID, *entries[3].ReversesID)
	require.Equal(t, RollbackActor, entries[3].RecordedBy)
	require.True(t, entries[3].BalanceAfter.Equal(dec("70")))
	require.Equal(t, posted[0].ID, *entries[4].ReversesID)
	require.True(t, entries[4].BalanceAfter.Equal(dec("100")))

	_, err = s.Verify(ctx, id)
	require.NoError(t, err)

	// Failing before any post leaves the ledger alone.
	err = s.Exclusive(ctx, id, func(*Tx) error { return errStore })
	require.ErrorIs(t, err, errStore)
	require.Len(t, collect(t, s, id), 5)
}

func TestRolledBackReversalCanBeRepeated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(memstore.NewLedger(), 0)
	id := openAccount(t, s, domain.KindSavings)
	deposit := post(t, s, id, domain.EntryDeposit, "80")

	errStore := errors.New("record not stored")
	err := s.Exclusive(ctx, id, func(tx *Tx) error {
		rev, orig, err := tx.Reverse(deposit.ID, "director", "wrong client")
		require.NoError(t, err)
		require.Equal(t, deposit.ID, orig.ID)
		require.True(t, rev.BalanceAfter.IsZero())

		return errStore
	})
	require.ErrorIs(t, err, errStore)

	balance, err := s.Balance(ctx, id)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("80")))

	rev, err := s.Reverse(ctx, domain.ReverseEntryParams{AccountID: id, EntryID: deposit.ID, Reason: "wrong client"})
	require.NoError(t, err)
	require.True(t, rev.BalanceAfter.IsZero())

	_, err = s.Reverse(ctx, domain.ReverseEntryParams{AccountID: id, EntryID: deposit.ID, Reason: "again"})
	require.ErrorIs(t, err, domain.ErrAlreadyReversed)
}

func TestRollbackFailureHaltsAccount(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := NewMockRepo(ctrl)
	s := New(repo, 0)

	id := uuid.New()
	head := domain.LedgerAccount{AccountID: id, Kind: domain.KindLoan, Balance: decimal.Zero}

	var appended []domain.LedgerEntry

	record := func(_ context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
		appended = append(appended, e)
		return e, nil
	}

	gomock.InOrder(
		repo.EXPECT().GetAccount(gomock.Any(), gomock.Eq(id)).Times(1).Return(head, nil),
		repo.EXPECT().Append(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(record),
		repo.EXPECT().Append(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(
			func(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
				_, _ = record(ctx, e)
				return domain.LedgerEntry{}, errorspkg.ErrInternal
			}),
		repo.EXPECT().Halt(gomock.Any(), gomock.Eq(id)).Times(1).Return(nil),
	)

	errStore := errors.New("record not stored")
	err := s.Exclusive(context.Background(), id, func(tx *Tx) error {
		_, err := tx.Post(domain.EntryDisbursement, dec("1000"), "manager", "disbursement")
		require.NoError(t, err)

		return errStore
	})
	require.ErrorIs(t, err, errStore)

	require.Len(t, appended, 2)
	require.Equal(t, domain.EntryReversal, appended[1].Type)
	require.Equal(t, appended[0].ID, *appended[1].ReversesID)
	require.True(t, appended[1].BalanceAfter.IsZero())
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(memstore.NewLedger(), 0)

	empty := openAccount(t, s, domain.KindLoan)
	require.NoError(t, s.Discard(ctx, empty))

	_, err := s.Account(ctx, empty)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	// The id is free again.
	_, err = s.Open(ctx, empty, domain.KindLoan)
	require.NoError(t, err)

	used := openAccount(t, s, domain.KindSavings)
	post(t, s, used, domain.EntryDeposit, "5")

	err = s.Discard(ctx, used)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = s.Account(ctx, used)
	require.NoError(t, err)

	require.ErrorIs(t, s.Discard(ctx, uuid.New()), domain.ErrAccountNotFound)
}

func TestKeyedMutexReleasesLocks(t *testing.T) {
	t.Parallel()

	k := newKeyedMutex()
	id := uuid.New()

	unlock := k.Lock(id)
	require.Len(t, k.locks, 1)
	unlock()
	require.Empty(t, k.locks)
}
