// Package savingsservice manages business logic layer of savings accounts.
package savingsservice

import (
	"context"
	"fmt"
	"time"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/ledgerservice"
	"github.com/go-petr/pet-lender/internal/metrics"
	"github.com/go-petr/pet-lender/internal/tracing"
	"github.com/go-petr/pet-lender/pkg/moneypkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Repo provides data access layer interface needed by savings service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package savingsservice
type Repo interface {
	Create(ctx context.Context, a domain.SavingsAccount) (domain.SavingsAccount, error)
	Get(ctx context.Context, id uuid.UUID) (domain.SavingsAccount, error)
	Update(ctx context.Context, a domain.SavingsAccount) (domain.SavingsAccount, error)
	List(ctx context.Context, arg domain.ListSavingsParams) ([]domain.SavingsAccount, error)
}

// Ledger provides the ledger operations savings accounts need.
type Ledger interface {
	Open(ctx context.Context, accountID uuid.UUID, kind domain.AccountKind) (domain.LedgerAccount, error)
	Discard(ctx context.Context, accountID uuid.UUID) error
	Exclusive(ctx context.Context, accountID uuid.UUID, fn func(tx *ledgerservice.Tx) error) error
}

// Gateway authorizes privileged actions.
type Gateway interface {
	Authorize(actor domain.Actor, action domain.Action) error
}

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, e domain.Event) error
}

// Service facilitates savings service layer logic.
type Service struct {
	repo      Repo
	ledger    Ledger
	gateway   Gateway
	publisher Publisher
	now       func() time.Time
}

// New returns savings service struct to manage savings bussines logic.
func New(repo Repo, ledger Ledger, gateway Gateway, publisher Publisher) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		gateway:   gateway,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) checkTarget(arg domain.CreateSavingsParams) error {
	if arg.TargetAmount != nil && moneypkg.Check(*arg.TargetAmount) != nil {
		return fmt.Errorf("%w: target amount %s", domain.ErrInvalidSavingsTarget, arg.TargetAmount)
	}

	if arg.MaturityDate != nil && !arg.MaturityDate.After(s.now()) {
		return fmt.Errorf("%w: maturity date %s is not in the future",
			domain.ErrInvalidSavingsTarget, arg.MaturityDate.Format(time.DateOnly))
	}

	switch {
	case arg.AccountType == domain.AccountTarget && arg.TargetAmount == nil:
		return fmt.Errorf("%w: target accounts need a target amount", domain.ErrInvalidSavingsTarget)
	case arg.AccountType == domain.AccountFixed && arg.MaturityDate == nil:
		return fmt.Errorf("%w: fixed accounts need a maturity date", domain.ErrInvalidSavingsTarget)
	}

	return nil
}

// Create opens a savings account awaiting approval.
func (s *Service) Create(ctx context.Context, actor domain.Actor, arg domain.CreateSavingsParams) (domain.SavingsAccount, error) {
	l := zerolog.Ctx(ctx)

	if _, err := domain.ParseAccountType(string(arg.AccountType)); err != nil {
		return domain.SavingsAccount{}, err
	}

	if err := s.checkTarget(arg); err != nil {
		l.Info().Err(err).Send()
		return domain.SavingsAccount{}, err
	}

	a := domain.SavingsAccount{
		ID:               uuid.New(),
		ClientID:         arg.ClientID,
		AccountType:      arg.AccountType,
		Balance:          decimal.Zero,
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		InterestEarned:   decimal.Zero,
		TargetAmount:     arg.TargetAmount,
		MaturityDate:     arg.MaturityDate,
		Status:           domain.SavingsPendingApproval,
		CreatedBy:        actor.Username,
		CreatedAt:        s.now(),
	}

	if _, err := s.ledger.Open(ctx, a.ID, domain.KindSavings); err != nil {
		l.Error().Err(err).Msg("open savings ledger")
		return domain.SavingsAccount{}, err
	}

	created, err := s.repo.Create(ctx, a)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %+v)", arg)

		if derr := s.ledger.Discard(ctx, a.ID); derr != nil {
			l.Error().Err(derr).Str("savings_id", a.ID.String()).Msg("discard savings ledger")
		}

		return domain.SavingsAccount{}, err
	}

	a = created

	metrics.Transitions.WithLabelValues("savings", string(a.Status)).Inc()

	s.publish(ctx, a, domain.EventSavingsCreated, actor, decimal.Zero)

	return a, nil
}

// Approve activates a pending account.
func (s *Service) Approve(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.SavingsAccount, error) {
	if err := s.gateway.Authorize(actor, domain.ActionApproveSavings); err != nil {
		return domain.SavingsAccount{}, err
	}

	a, err := s.mutate(ctx, "savings.Approve", id, func(_ *ledgerservice.Tx, a *domain.SavingsAccount) error {
		if err := transition(a, domain.SavingsActive); err != nil {
			return err
		}

		now := s.now()
		a.ApprovedBy = actor.Username
		a.ApprovedAt = &now

		return nil
	})
	if err != nil {
		return a, err
	}

	s.publish(ctx, a, domain.EventSavingsApproved, actor, decimal.Zero)

	return a, nil
}

// Deposit credits an active account.
func (s *Service) Deposit(ctx context.Context, actor domain.Actor, arg domain.SavingsTxParams) (domain.SavingsTxResult, error) {
	res, err := s.post(ctx, actor, "savings.Deposit", domain.EntryDeposit, arg, func(a *domain.SavingsAccount) error {
		a.TotalDeposits = a.TotalDeposits.Add(arg.Amount)
		return nil
	})
	if err != nil {
		return res, err
	}

	s.publish(ctx, res.Account, domain.EventDepositPosted, actor, arg.Amount)

	return res, nil
}

// Withdraw debits an active account. It fails with domain.ErrInsufficientBalance
// rather than overdraw, and fixed accounts refuse withdrawals before maturity.
func (s *Service) Withdraw(ctx context.Context, actor domain.Actor, arg domain.SavingsTxParams) (domain.SavingsTxResult, error) {
	res, err := s.post(ctx, actor, "savings.Withdraw", domain.EntryWithdrawal, arg, func(a *domain.SavingsAccount) error {
		if a.AccountType == domain.AccountFixed && a.MaturityDate != nil && s.now().Before(*a.MaturityDate) {
			return fmt.Errorf("%w: fixed account matures on %s",
				domain.ErrInvalidStateTransition, a.MaturityDate.Format(time.DateOnly))
		}

		a.TotalWithdrawals = a.TotalWithdrawals.Add(arg.Amount)

		return nil
	})
	if err != nil {
		return res, err
	}

	s.publish(ctx, res.Account, domain.EventWithdrawalPosted, actor, arg.Amount)

	return res, nil
}

// PostInterest credits interest accrued outside the core.
func (s *Service) PostInterest(ctx context.Context, actor domain.Actor, arg domain.SavingsTxParams) (domain.SavingsTxResult, error) {
	if err := s.gateway.Authorize(actor, domain.ActionPostInterest); err != nil {
		return domain.SavingsTxResult{}, err
	}

	res, err := s.post(ctx, actor, "savings.PostInterest", domain.EntryInterest, arg, func(a *domain.SavingsAccount) error {
		a.InterestEarned = a.InterestEarned.Add(arg.Amount)
		return nil
	})
	if err != nil {
		return res, err
	}

	s.publish(ctx, res.Account, domain.EventInterestPosted, actor, arg.Amount)

	return res, nil
}

// Close closes an active account. The balance must be withdrawn first.
func (s *Service) Close(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.SavingsAccount, error) {
	if err := s.gateway.Authorize(actor, domain.ActionCloseSavings); err != nil {
		return domain.SavingsAccount{}, err
	}

	a, err := s.mutate(ctx, "savings.Close", id, func(tx *ledgerservice.Tx, a *domain.SavingsAccount) error {
		if !tx.Balance().IsZero() {
			return fmt.Errorf("%w: %s left", domain.ErrBalanceNotZero, tx.Balance().StringFixed(2))
		}

		if err := transition(a, domain.SavingsClosed); err != nil {
			return err
		}

		now := s.now()
		a.ClosedAt = &now

		return nil
	})
	if err != nil {
		return a, err
	}

	s.publish(ctx, a, domain.EventSavingsClosed, actor, decimal.Zero)

	return a, nil
}

// ReverseEntry reverses an entry of the savings ledger arg.AccountID and takes the amount
// back out of the total the original entry counted towards. Closed accounts cannot be corrected.
func (s *Service) ReverseEntry(ctx context.Context, actor domain.Actor, arg domain.ReverseEntryParams) (domain.LedgerEntry, error) {
	if err := s.gateway.Authorize(actor, domain.ActionReverseEntry); err != nil {
		return domain.LedgerEntry{}, err
	}

	if arg.Reason == "" {
		return domain.LedgerEntry{}, domain.ErrMissingReason
	}

	var rev domain.LedgerEntry

	_, err := s.mutate(ctx, "savings.ReverseEntry", arg.AccountID, func(tx *ledgerservice.Tx, a *domain.SavingsAccount) error {
		if a.Status == domain.SavingsClosed {
			return fmt.Errorf("%w: account is closed", domain.ErrInvalidStateTransition)
		}

		e, orig, err := tx.Reverse(arg.EntryID, actor.Username, arg.Reason)
		if err != nil {
			return err
		}

		switch orig.Type {
		case domain.EntryDeposit:
			a.TotalDeposits = a.TotalDeposits.Sub(orig.Amount)
		case domain.EntryWithdrawal:
			a.TotalWithdrawals = a.TotalWithdrawals.Sub(orig.Amount)
		case domain.EntryInterest:
			a.InterestEarned = a.InterestEarned.Sub(orig.Amount)
		}

		rev = e
		a.Balance = tx.Balance()

		return nil
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	return rev, nil
}

// Get returns the savings account id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.SavingsAccount, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Str("savings_id", id.String()).Send()
		return a, err
	}

	return a, nil
}

// List returns the savings accounts matching arg.
func (s *Service) List(ctx context.Context, arg domain.ListSavingsParams) ([]domain.SavingsAccount, error) {
	items, err := s.repo.List(ctx, arg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msgf("List(ctx, %+v)", arg)
		return nil, err
	}

	return items, nil
}

// post appends an entry of type t to an active account and lets apply update the totals.
func (s *Service) post(ctx context.Context, actor domain.Actor, op string, t domain.EntryType, arg domain.SavingsTxParams,
	apply func(a *domain.SavingsAccount) error,
) (domain.SavingsTxResult, error) {
	var res domain.SavingsTxResult

	if !arg.Amount.IsPositive() {
		return res, domain.ErrInvalidAmount
	}

	a, err := s.mutate(ctx, op, arg.AccountID, func(tx *ledgerservice.Tx, a *domain.SavingsAccount) error {
		if a.Status != domain.SavingsActive {
			return fmt.Errorf("%w: account is %s, %s needs an active account",
				domain.ErrInvalidStateTransition, a.Status, t)
		}

		if err := apply(a); err != nil {
			return err
		}

		e, err := tx.Post(t, arg.Amount, actor.Username, arg.Reference)
		if err != nil {
			return err
		}

		res.Entry = e
		a.Balance = tx.Balance()

		return nil
	})
	if err != nil {
		return res, err
	}

	res.Account = a

	return res, nil
}

// mutate runs fn on the current state of account id under its ledger lock and stores the result.
func (s *Service) mutate(ctx context.Context, op string, id uuid.UUID,
	fn func(tx *ledgerservice.Tx, a *domain.SavingsAccount) error,
) (domain.SavingsAccount, error) {
	l := zerolog.Ctx(ctx)

	ctx, span := tracing.Start(ctx, op, attribute.String("savings_id", id.String()))

	if _, err := s.repo.Get(ctx, id); err != nil {
		tracing.End(span, err)
		return domain.SavingsAccount{}, err
	}

	var a domain.SavingsAccount

	err := s.ledger.Exclusive(ctx, id, func(tx *ledgerservice.Tx) error {
		cur, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		if err := fn(tx, &cur); err != nil {
			return err
		}

		a, err = s.repo.Update(ctx, cur)

		return err
	})

	tracing.End(span, err)

	if err != nil {
		l.Info().Err(err).Str("savings_id", id.String()).Msg(op)
		return domain.SavingsAccount{}, err
	}

	metrics.Transitions.WithLabelValues("savings", string(a.Status)).Inc()

	return a, nil
}

func transition(a *domain.SavingsAccount, next domain.SavingsStatus) error {
	if !a.Status.CanTransitionTo(next) {
		return &domain.TransitionError{Entity: "savings", From: string(a.Status), To: string(next)}
	}

	a.Status = next

	return nil
}

func (s *Service) publish(ctx context.Context, a domain.SavingsAccount, t domain.EventType, actor domain.Actor, amount decimal.Decimal) {
	e := domain.NewEvent(t, a.ID, actor.Username)
	e.ClientID = a.ClientID
	e.Status = string(a.Status)
	e.Amount = amount
	e.Balance = a.Balance

	if err := s.publisher.Publish(ctx, e); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("event", string(t)).Str("savings_id", a.ID.String()).Msg("publish event")
		metrics.EventsPublished.WithLabelValues(string(t), "failed").Inc()

		return
	}

	metrics.EventsPublished.WithLabelValues(string(t), "ok").Inc()
}
