// Package ledgerservice manages the append-only per-account ledgers.
//
// Every balance change is an entry carrying the balance before and after it.
// Posts to one account are serialized, posts to different accounts run in parallel.
package ledgerservice

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/metrics"
	"github.com/go-petr/pet-lender/internal/tracing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Repo provides data access layer interface needed by ledger service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package ledgerservice
type Repo interface {
	CreateAccount(ctx context.Context, arg domain.LedgerAccount) (domain.LedgerAccount, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (domain.LedgerAccount, error)
	// Append stores e and moves the account head to it atomically. It fails with
	// domain.ErrConcurrentModification unless the head still ends at e.Sequence-1
	// with balance e.BalanceBefore.
	Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, afterSequence int64, limit int32) ([]domain.LedgerEntry, error)
	GetEntry(ctx context.Context, accountID, entryID uuid.UUID) (domain.LedgerEntry, error)
	// IsReversed reports whether entryID has a reversal that was not rolled back itself.
	IsReversed(ctx context.Context, entryID uuid.UUID) (bool, error)
	Halt(ctx context.Context, accountID uuid.UUID) error
	// DeleteAccount removes the ledger head of accountID if no entry was ever posted to it.
	DeleteAccount(ctx context.Context, accountID uuid.UUID) error
}

// RollbackActor records the entries that undo a failed command.
const RollbackActor = "system"

// Service facilitates ledger service layer logic.
type Service struct {
	repo     Repo
	pageSize int32
	locks    *keyedMutex
	now      func() time.Time
}

// DefaultPageSize is the number of entries History reads per round trip when none is configured.
const DefaultPageSize = 100

// New returns ledger service struct to manage ledger bussines logic.
func New(repo Repo, pageSize int32) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Service{
		repo:     repo,
		pageSize: pageSize,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Open creates the empty ledger of accountID.
func (s *Service) Open(ctx context.Context, accountID uuid.UUID, kind domain.AccountKind) (domain.LedgerAccount, error) {
	return s.repo.CreateAccount(ctx, domain.LedgerAccount{
		AccountID: accountID,
		Kind:      kind,
		Balance:   decimal.Zero,
		CreatedAt: s.now(),
	})
}

// Discard removes the ledger of accountID while it is still empty. Lifecycles use it
// when the record owning a freshly opened ledger cannot be stored.
func (s *Service) Discard(ctx context.Context, accountID uuid.UUID) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	return s.repo.DeleteAccount(ctx, accountID)
}

// Account returns the cached head of the ledger.
func (s *Service) Account(ctx context.Context, accountID uuid.UUID) (domain.LedgerAccount, error) {
	return s.repo.GetAccount(ctx, accountID)
}

// Balance returns the current balance of the ledger.
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	a, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	return a.Balance, nil
}

// Exclusive runs fn while holding the lock of accountID.
//
// Lifecycles use it to check their own state, post entries and store their record
// as one step. If fn fails after posting, the entries it posted are reversed, newest
// first, before the lock is released, so the balance is back where fn found it.
// A ledger that cannot be restored is halted.
// It fails with domain.ErrLedgerCorrupted if the account is halted.
func (s *Service) Exclusive(ctx context.Context, accountID uuid.UUID, fn func(tx *Tx) error) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	head, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if head.Halted {
		return fmt.Errorf("%w: account %s is halted", domain.ErrLedgerCorrupted, accountID)
	}

	tx := &Tx{ctx: ctx, s: s, head: head}

	if err := fn(tx); err != nil {
		if len(tx.posted) > 0 {
			s.rollback(tx, err)
		}

		return err
	}

	return nil
}

func (s *Service) rollback(tx *Tx, cause error) {
	// The caller may have given up already, the ledger still has to be restored.
	tx.ctx = context.WithoutCancel(tx.ctx)
	l := zerolog.Ctx(tx.ctx)
	posted := tx.posted
	tx.posted = nil

	for i := len(posted) - 1; i >= 0; i-- {
		e := posted[i]

		_, err := tx.post(entryDraft{
			typ:        domain.EntryReversal,
			amount:     e.Amount,
			credit:     e.Delta().IsNegative(),
			recordedBy: RollbackActor,
			reference:  "rollback",
			reverses:   &e.ID,
		})
		if err != nil {
			s.halt(tx.ctx, tx.head.AccountID, fmt.Errorf("%w: cannot roll back entry %d after %v: %v",
				domain.ErrLedgerCorrupted, e.Sequence, cause, err))

			return
		}
	}

	l.Warn().Err(cause).
		Str("account_id", tx.head.AccountID.String()).
		Int("entries", len(posted)).
		Msg("rolled back entries of failed command")
}

// Post appends one entry to the ledger of arg.AccountID.
func (s *Service) Post(ctx context.Context, arg domain.PostEntryParams) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry

	err := s.Exclusive(ctx, arg.AccountID, func(tx *Tx) error {
		var err error
		e, err = tx.Post(arg.Type, arg.Amount, arg.RecordedBy, arg.Reference)
		return err
	})

	return e, err
}

// Reverse posts an entry undoing arg.EntryID. The reversal moves the balance in the
// opposite direction of the original. Reversals and entries reversed already cannot be reversed.
// Only the ledger changes: staff reversals go through Auditor so the owning record follows.
func (s *Service) Reverse(ctx context.Context, arg domain.ReverseEntryParams) (domain.LedgerEntry, error) {
	l := zerolog.Ctx(ctx)

	if arg.Reason == "" {
		return domain.LedgerEntry{}, domain.ErrMissingReason
	}

	var e domain.LedgerEntry

	err := s.Exclusive(ctx, arg.AccountID, func(tx *Tx) error {
		var err error
		e, _, err = tx.Reverse(arg.EntryID, arg.RecordedBy, arg.Reason)
		return err
	})
	if err != nil {
		l.Info().Err(err).Msgf("Reverse(ctx, %+v)", arg)
		return domain.LedgerEntry{}, err
	}

	return e, nil
}

// History returns the entries of accountID in sequence order.
//
// Entries are read lazily in pages. Each call starts from the first entry.
// The balance chain is checked while iterating: on the first break the account
// is halted and the iteration yields an error wrapping domain.ErrLedgerCorrupted.
func (s *Service) History(ctx context.Context, accountID uuid.UUID) iter.Seq2[domain.LedgerEntry, error] {
	return func(yield func(domain.LedgerEntry, error) bool) {
		c := chain{}
		after := int64(0)

		for {
			page, err := s.repo.ListEntries(ctx, accountID, after, s.pageSize)
			if err != nil {
				yield(domain.LedgerEntry{}, err)
				return
			}

			for _, e := range page {
				if err := c.next(e); err != nil {
					yield(domain.LedgerEntry{}, s.halt(ctx, accountID, err))
					return
				}

				if !yield(e, nil) {
					return
				}

				after = e.Sequence
			}

			if int32(len(page)) < s.pageSize {
				return
			}
		}
	}
}

// Verify walks the whole ledger of accountID and checks that the balance chain
// holds and ends at the cached balance. A broken ledger is halted.
func (s *Service) Verify(ctx context.Context, accountID uuid.UUID) (domain.LedgerAccount, error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	head, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return head, err
	}

	c := chain{}

	for e, err := range s.History(ctx, accountID) {
		if err != nil {
			if errors.Is(err, domain.ErrLedgerCorrupted) {
				head.Halted = true
			}

			return head, err
		}

		// History already checked e against its predecessor.
		c.last, c.balance = e.Sequence, e.BalanceAfter
	}

	if c.last != head.LastSequence || !c.balance.Equal(head.Balance) {
		head.Halted = true

		return head, s.halt(ctx, accountID, fmt.Errorf(
			"%w: head at sequence %d balance %s, entries end at sequence %d balance %s",
			domain.ErrLedgerCorrupted, head.LastSequence, head.Balance, c.last, c.balance))
	}

	return head, nil
}

func (s *Service) halt(ctx context.Context, accountID uuid.UUID, cause error) error {
	l := zerolog.Ctx(ctx)

	l.Error().Err(cause).Str("account_id", accountID.String()).Msg("ledger corrupted, halting account")
	metrics.LedgerCorruptions.Inc()

	if err := s.repo.Halt(ctx, accountID); err != nil {
		l.Error().Err(err).Str("account_id", accountID.String()).Msg("halt account")
	}

	return cause
}

// chain checks that entries follow each other without gaps and that every balance
// continues from the previous one.
type chain struct {
	last    int64
	balance decimal.Decimal
}

func (c *chain) next(e domain.LedgerEntry) error {
	if e.Sequence != c.last+1 {
		return fmt.Errorf("%w: expected sequence %d, got %d", domain.ErrLedgerCorrupted, c.last+1, e.Sequence)
	}

	if !e.BalanceBefore.Equal(c.balance) {
		return fmt.Errorf("%w: entry %d starts at %s, previous ended at %s",
			domain.ErrLedgerCorrupted, e.Sequence, e.BalanceBefore, c.balance)
	}

	if !e.Delta().Abs().Equal(e.Amount) || !e.Amount.IsPositive() {
		return fmt.Errorf("%w: entry %d moves %s by %s",
			domain.ErrLedgerCorrupted, e.Sequence, e.BalanceBefore, e.Amount)
	}

	if e.Type != domain.EntryReversal && e.Type.Credit() != e.Delta().IsPositive() {
		return fmt.Errorf("%w: entry %d of type %s moves the balance the wrong way",
			domain.ErrLedgerCorrupted, e.Sequence, e.Type)
	}

	if e.BalanceAfter.IsNegative() {
		return fmt.Errorf("%w: entry %d leaves a negative balance", domain.ErrLedgerCorrupted, e.Sequence)
	}

	c.last, c.balance = e.Sequence, e.BalanceAfter

	return nil
}

// Tx posts entries to one account while Exclusive holds its lock.
// It must not be used after the Exclusive callback returns.
type Tx struct {
	ctx    context.Context
	s      *Service
	head   domain.LedgerAccount
	posted []domain.LedgerEntry
}

// Account returns the ledger head as of the last post of tx.
func (tx *Tx) Account() domain.LedgerAccount {
	return tx.head
}

// Balance returns the balance as of the last post of tx.
func (tx *Tx) Balance() decimal.Decimal {
	return tx.head.Balance
}

// Post appends an entry of type t. Reversals go through Reverse.
func (tx *Tx) Post(t domain.EntryType, amount decimal.Decimal, recordedBy, reference string) (domain.LedgerEntry, error) {
	if !t.Valid() || t == domain.EntryReversal {
		return domain.LedgerEntry{}, fmt.Errorf("cannot post entry of type %q", t)
	}

	return tx.post(entryDraft{
		typ:        t,
		amount:     amount,
		credit:     t.Credit(),
		recordedBy: recordedBy,
		reference:  reference,
	})
}

// Reverse posts an entry undoing entryID and returns it along with the entry it reverses.
// Reversals and entries reversed already cannot be reversed.
func (tx *Tx) Reverse(entryID uuid.UUID, recordedBy, reason string) (domain.LedgerEntry, domain.LedgerEntry, error) {
	if reason == "" {
		return domain.LedgerEntry{}, domain.LedgerEntry{}, domain.ErrMissingReason
	}

	orig, err := tx.s.repo.GetEntry(tx.ctx, tx.head.AccountID, entryID)
	if err != nil {
		return domain.LedgerEntry{}, orig, err
	}

	if orig.Type == domain.EntryReversal {
		return domain.LedgerEntry{}, orig, domain.ErrAlreadyReversed
	}

	reversed, err := tx.s.repo.IsReversed(tx.ctx, orig.ID)
	if err != nil {
		return domain.LedgerEntry{}, orig, err
	}

	if reversed {
		return domain.LedgerEntry{}, orig, domain.ErrAlreadyReversed
	}

	e, err := tx.post(entryDraft{
		typ:        domain.EntryReversal,
		amount:     orig.Amount,
		credit:     orig.Delta().IsNegative(),
		recordedBy: recordedBy,
		reference:  reason,
		reverses:   &orig.ID,
	})

	return e, orig, err
}

type entryDraft struct {
	typ        domain.EntryType
	amount     decimal.Decimal
	credit     bool
	recordedBy string
	reference  string
	reverses   *uuid.UUID
}

func (tx *Tx) post(d entryDraft) (domain.LedgerEntry, error) {
	ctx, span := tracing.Start(tx.ctx, "ledger.Post",
		attribute.String("account_id", tx.head.AccountID.String()),
		attribute.String("type", string(d.typ)),
		attribute.String("amount", d.amount.String()),
	)

	e, err := tx.append(ctx, d)

	tracing.End(span, err)

	if err != nil {
		metrics.LedgerRejections.WithLabelValues(string(domain.CategoryOf(err))).Inc()
		return e, err
	}

	metrics.LedgerEntries.WithLabelValues(string(d.typ)).Inc()

	return e, nil
}

func (tx *Tx) append(ctx context.Context, d entryDraft) (domain.LedgerEntry, error) {
	l := zerolog.Ctx(ctx)

	if !d.amount.IsPositive() || !d.amount.Equal(d.amount.Truncate(2)) {
		return domain.LedgerEntry{}, domain.ErrInvalidAmount
	}

	before := tx.head.Balance

	after := before.Add(d.amount)
	if !d.credit {
		after = before.Sub(d.amount)
	}

	if after.IsNegative() {
		return domain.LedgerEntry{}, &domain.InsufficientBalanceError{
			AccountID: tx.head.AccountID,
			Available: before,
			Requested: d.amount,
		}
	}

	e, err := tx.s.repo.Append(ctx, domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     tx.head.AccountID,
		Sequence:      tx.head.LastSequence + 1,
		Type:          d.typ,
		Amount:        d.amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		RecordedBy:    d.recordedBy,
		Reference:     d.reference,
		ReversesID:    d.reverses,
		CreatedAt:     tx.s.now(),
	})
	if err != nil {
		l.Error().Err(err).Str("account_id", tx.head.AccountID.String()).Msg("append entry")
		return domain.LedgerEntry{}, err
	}

	tx.head.Balance = e.BalanceAfter
	tx.head.LastSequence = e.Sequence
	tx.posted = append(tx.posted, e)

	l.Debug().
		Str("account_id", e.AccountID.String()).
		Int64("sequence", e.Sequence).
		Str("type", string(e.Type)).
		Str("balance_after", e.BalanceAfter.String()).
		Msg("entry posted")

	return e, nil
}
