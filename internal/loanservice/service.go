// Package loanservice manages business logic layer of loans.
package loanservice

import (
	"context"
	"fmt"
	"time"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/ledgerservice"
	"github.com/go-petr/pet-lender/internal/metrics"
	"github.com/go-petr/pet-lender/internal/pricing"
	"github.com/go-petr/pet-lender/internal/tracing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Repo provides data access layer interface needed by loan service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package loanservice
type Repo interface {
	Create(ctx context.Context, l domain.Loan) (domain.Loan, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Loan, error)
	// Update stores l if the stored version equals l.Version and returns it with the next version.
	Update(ctx context.Context, l domain.Loan) (domain.Loan, error)
	List(ctx context.Context, arg domain.ListLoansParams) ([]domain.Loan, error)
}

// Pricer computes loan quotes.
type Pricer interface {
	Quote(principal decimal.Decimal, f domain.Frequency, durationValue int) (domain.LoanQuote, error)
}

// Ledger provides the ledger operations loans need.
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

// Service facilitates loan service layer logic.
type Service struct {
	repo      Repo
	pricer    Pricer
	ledger    Ledger
	gateway   Gateway
	publisher Publisher
	now       func() time.Time
}

// New returns loan service struct to manage loan bussines logic.
func New(repo Repo, pricer Pricer, ledger Ledger, gateway Gateway, publisher Publisher) *Service {
	return &Service{
		repo:      repo,
		pricer:    pricer,
		ledger:    ledger,
		gateway:   gateway,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Quote prices a loan without storing anything.
func (s *Service) Quote(ctx context.Context, principal decimal.Decimal, f domain.Frequency, durationValue int) (domain.LoanQuote, error) {
	q, err := s.pricer.Quote(principal, f, durationValue)
	if err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Msgf("Quote(ctx, %s, %s, %d)", principal, f, durationValue)
		return q, err
	}

	metrics.Quotes.WithLabelValues(string(f)).Inc()

	return q, nil
}

// Apply validates the application, freezes its quote and submits it for approval.
// Nothing is stored when the application is invalid.
func (s *Service) Apply(ctx context.Context, actor domain.Actor, arg domain.ApplyLoanParams) (domain.Loan, error) {
	l := zerolog.Ctx(ctx)

	if err := arg.CheckGuarantors(); err != nil {
		l.Info().Err(err).Send()
		return domain.Loan{}, err
	}

	q, err := s.Quote(ctx, arg.PrincipalAmount, arg.Frequency, arg.DurationValue)
	if err != nil {
		return domain.Loan{}, err
	}

	loan := domain.Loan{
		ID:                 uuid.New(),
		ClientID:           arg.ClientID,
		PrincipalAmount:    arg.PrincipalAmount,
		Frequency:          arg.Frequency,
		DurationValue:      arg.DurationValue,
		Purpose:            arg.Purpose,
		Guarantor1:         arg.Guarantor1,
		Guarantor2:         arg.Guarantor2,
		Collateral:         arg.Collateral,
		Status:             domain.LoanPendingApproval,
		Quote:              q,
		OutstandingBalance: decimal.Zero,
		AmountPaid:         decimal.Zero,
		AppliedBy:          actor.Username,
		AppliedAt:          s.now(),
	}

	if _, err := s.ledger.Open(ctx, loan.ID, domain.KindLoan); err != nil {
		l.Error().Err(err).Msg("open loan ledger")
		return domain.Loan{}, err
	}

	created, err := s.repo.Create(ctx, loan)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %+v)", arg)

		if derr := s.ledger.Discard(ctx, loan.ID); derr != nil {
			l.Error().Err(derr).Str("loan_id", loan.ID.String()).Msg("discard loan ledger")
		}

		return domain.Loan{}, err
	}

	loan = created

	metrics.Transitions.WithLabelValues("loan", string(loan.Status)).Inc()

	s.publish(ctx, loan, domain.EventLoanApplied, actor, loan.PrincipalAmount, "")

	return loan, nil
}

// Approve moves a pending loan to approved.
func (s *Service) Approve(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Loan, error) {
	if err := s.gateway.Authorize(actor, domain.ActionApproveLoan); err != nil {
		return domain.Loan{}, err
	}

	loan, err := s.mutate(ctx, "loan.Approve", id, func(_ *ledgerservice.Tx, loan *domain.Loan) error {
		if err := transition(loan, domain.LoanApproved); err != nil {
			return err
		}

		now := s.now()
		loan.ApprovedBy = actor.Username
		loan.ApprovedAt = &now

		return nil
	})
	if err != nil {
		return loan, err
	}

	s.publish(ctx, loan, domain.EventLoanApproved, actor, loan.PrincipalAmount, "")

	return loan, nil
}

// Reject moves a pending loan to rejected. A reason is required.
func (s *Service) Reject(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (domain.Loan, error) {
	if err := s.gateway.Authorize(actor, domain.ActionRejectLoan); err != nil {
		return domain.Loan{}, err
	}

	if reason == "" {
		return domain.Loan{}, domain.ErrMissingReason
	}

	loan, err := s.mutate(ctx, "loan.Reject", id, func(_ *ledgerservice.Tx, loan *domain.Loan) error {
		if err := transition(loan, domain.LoanRejected); err != nil {
			return err
		}

		now := s.now()
		loan.RejectionReason = reason
		loan.RejectedAt = &now

		return nil
	})
	if err != nil {
		return loan, err
	}

	s.publish(ctx, loan, domain.EventLoanRejected, actor, loan.PrincipalAmount, reason)

	return loan, nil
}

// Disburse pays out an approved loan and activates it.
//
// The principal is posted as a disbursement and the frozen total interest as an
// interest entry, so the ledger balance is the amount the client owes.
func (s *Service) Disburse(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Loan, error) {
	if err := s.gateway.Authorize(actor, domain.ActionDisburseLoan); err != nil {
		return domain.Loan{}, err
	}

	loan, err := s.mutate(ctx, "loan.Disburse", id, func(tx *ledgerservice.Tx, loan *domain.Loan) error {
		if err := transition(loan, domain.LoanDisbursed); err != nil {
			return err
		}

		// A failed earlier attempt leaves only entries that cancel out.
		if !tx.Balance().IsZero() {
			return fmt.Errorf("%w: ledger of loan %s already holds %s", domain.ErrInvalidStateTransition, loan.ID, tx.Balance())
		}

		if _, err := tx.Post(domain.EntryDisbursement, loan.PrincipalAmount, actor.Username, "disbursement"); err != nil {
			return err
		}

		if loan.Quote.TotalInterest.IsPositive() {
			if _, err := tx.Post(domain.EntryInterest, loan.Quote.TotalInterest, actor.Username, "interest:flat"); err != nil {
				return err
			}
		}

		if err := transition(loan, domain.LoanActive); err != nil {
			return err
		}

		now := s.now()
		loan.DisbursedBy = actor.Username
		loan.DisbursedAt = &now
		loan.OutstandingBalance = tx.Balance()

		return nil
	})
	if err != nil {
		return loan, err
	}

	s.publish(ctx, loan, domain.EventLoanDisbursed, actor, loan.PrincipalAmount, "")

	return loan, nil
}

// Repay posts a repayment against an active loan. The loan completes when nothing is left owing.
// Repayments above the outstanding balance are rejected without touching the ledger.
func (s *Service) Repay(ctx context.Context, actor domain.Actor, arg domain.RepayParams) (domain.RepaymentResult, error) {
	var result domain.RepaymentResult

	if _, err := domain.ParseRepaymentMethod(string(arg.Method)); err != nil {
		return result, err
	}

	if !arg.Amount.IsPositive() {
		return result, domain.ErrInvalidAmount
	}

	loan, err := s.mutate(ctx, "loan.Repay", arg.LoanID, func(tx *ledgerservice.Tx, loan *domain.Loan) error {
		if loan.Status != domain.LoanActive {
			return fmt.Errorf("%w: loan is %s, repayments need an active loan", domain.ErrInvalidStateTransition, loan.Status)
		}

		if arg.Amount.GreaterThan(tx.Balance()) {
			return fmt.Errorf("%w: outstanding %s, offered %s",
				domain.ErrOverpaymentRejected, tx.Balance().StringFixed(2), arg.Amount.StringFixed(2))
		}

		e, err := tx.Post(domain.EntryRepayment, arg.Amount, actor.Username, "repayment:"+string(arg.Method))
		if err != nil {
			return err
		}

		result.Entry = e
		loan.OutstandingBalance = tx.Balance()
		loan.AmountPaid = loan.AmountPaid.Add(arg.Amount)

		if loan.OutstandingBalance.IsZero() {
			if err := transition(loan, domain.LoanCompleted); err != nil {
				return err
			}

			now := s.now()
			loan.CompletedAt = &now
		}

		return nil
	})
	if err != nil {
		return result, err
	}

	result.Loan = loan

	s.publish(ctx, loan, domain.EventRepaymentPosted, actor, arg.Amount, "")

	if loan.Status == domain.LoanCompleted {
		s.publish(ctx, loan, domain.EventLoanCompleted, actor, loan.AmountPaid, "")
	}

	return result, nil
}

// MarkDefaulted writes off an active loan. A reason is required.
func (s *Service) MarkDefaulted(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (domain.Loan, error) {
	if err := s.gateway.Authorize(actor, domain.ActionDefaultLoan); err != nil {
		return domain.Loan{}, err
	}

	if reason == "" {
		return domain.Loan{}, domain.ErrMissingReason
	}

	loan, err := s.mutate(ctx, "loan.MarkDefaulted", id, func(_ *ledgerservice.Tx, loan *domain.Loan) error {
		if err := transition(loan, domain.LoanDefaulted); err != nil {
			return err
		}

		now := s.now()
		loan.DefaultReason = reason
		loan.DefaultedAt = &now

		return nil
	})
	if err != nil {
		return loan, err
	}

	s.publish(ctx, loan, domain.EventLoanDefaulted, actor, loan.OutstandingBalance, reason)

	return loan, nil
}

// ReverseEntry reverses an entry of the loan ledger arg.AccountID and brings the loan in line
// with the new balance. A reversed repayment no longer counts as paid and reopens a completed
// loan, a reversal that clears the balance of an active loan completes it.
func (s *Service) ReverseEntry(ctx context.Context, actor domain.Actor, arg domain.ReverseEntryParams) (domain.LedgerEntry, error) {
	if err := s.gateway.Authorize(actor, domain.ActionReverseEntry); err != nil {
		return domain.LedgerEntry{}, err
	}

	if arg.Reason == "" {
		return domain.LedgerEntry{}, domain.ErrMissingReason
	}

	var (
		rev       domain.LedgerEntry
		completed bool
	)

	loan, err := s.mutate(ctx, "loan.ReverseEntry", arg.AccountID, func(tx *ledgerservice.Tx, loan *domain.Loan) error {
		e, orig, err := tx.Reverse(arg.EntryID, actor.Username, arg.Reason)
		if err != nil {
			return err
		}

		rev = e
		loan.OutstandingBalance = tx.Balance()

		if orig.Type == domain.EntryRepayment {
			loan.AmountPaid = loan.AmountPaid.Sub(orig.Amount)
		}

		switch {
		case loan.Status == domain.LoanCompleted && loan.OutstandingBalance.IsPositive():
			// Corrections are the only way back from completed.
			loan.Status = domain.LoanActive
			loan.CompletedAt = nil
		case loan.Status == domain.LoanActive && loan.OutstandingBalance.IsZero():
			if err := transition(loan, domain.LoanCompleted); err != nil {
				return err
			}

			now := s.now()
			loan.CompletedAt = &now
			completed = true
		}

		return nil
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	if completed {
		s.publish(ctx, loan, domain.EventLoanCompleted, actor, loan.AmountPaid, arg.Reason)
	}

	return rev, nil
}

// Get returns the loan with its status as of now, overdue included.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Loan, error) {
	loan, err := s.repo.Get(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Str("loan_id", id.String()).Send()
		return loan, err
	}

	loan.Status = Status(loan, s.now())

	return loan, nil
}

// List returns the loans matching arg. Filtering by LoanOverdue selects active loans behind schedule.
func (s *Service) List(ctx context.Context, arg domain.ListLoansParams) ([]domain.Loan, error) {
	overdueOnly := arg.Status == domain.LoanOverdue
	if overdueOnly {
		arg.Status = domain.LoanActive
	}

	loans, err := s.repo.List(ctx, arg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msgf("List(ctx, %+v)", arg)
		return nil, err
	}

	now := s.now()
	items := make([]domain.Loan, 0, len(loans))

	for _, loan := range loans {
		loan.Status = Status(loan, now)

		if overdueOnly && loan.Status != domain.LoanOverdue {
			continue
		}

		items = append(items, loan)
	}

	return items, nil
}

// Schedule returns the installment plan of the loan. Before disbursement the plan
// is projected from now.
func (s *Service) Schedule(ctx context.Context, id uuid.UUID) ([]domain.Installment, error) {
	loan, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	start := s.now()
	if loan.DisbursedAt != nil {
		start = *loan.DisbursedAt
	}

	return pricing.Schedule(loan.Quote, start), nil
}

// Status returns the status of loan at now. Active loans behind their schedule are overdue.
func Status(loan domain.Loan, now time.Time) domain.LoanStatus {
	if IsOverdue(loan, now) {
		return domain.LoanOverdue
	}

	return loan.Status
}

// IsOverdue reports whether an active loan has paid less than its schedule expects by now.
func IsOverdue(loan domain.Loan, now time.Time) bool {
	if loan.Status != domain.LoanActive || loan.DisbursedAt == nil {
		return false
	}

	return loan.AmountPaid.LessThan(pricing.DueBy(loan.Quote, *loan.DisbursedAt, now))
}

// mutate runs fn on the current state of loan id under the ledger lock of the loan
// and stores the result.
func (s *Service) mutate(ctx context.Context, op string, id uuid.UUID, fn func(tx *ledgerservice.Tx, loan *domain.Loan) error) (domain.Loan, error) {
	l := zerolog.Ctx(ctx)

	ctx, span := tracing.Start(ctx, op, attribute.String("loan_id", id.String()))

	// Resolve unknown loans before touching the ledger.
	if _, err := s.repo.Get(ctx, id); err != nil {
		tracing.End(span, err)
		return domain.Loan{}, err
	}

	var loan domain.Loan

	err := s.ledger.Exclusive(ctx, id, func(tx *ledgerservice.Tx) error {
		cur, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		if err := fn(tx, &cur); err != nil {
			return err
		}

		loan, err = s.repo.Update(ctx, cur)

		return err
	})

	tracing.End(span, err)

	if err != nil {
		l.Info().Err(err).Str("loan_id", id.String()).Msg(op)
		return domain.Loan{}, err
	}

	metrics.Transitions.WithLabelValues("loan", string(loan.Status)).Inc()

	return loan, nil
}

func transition(loan *domain.Loan, next domain.LoanStatus) error {
	if !loan.Status.CanTransitionTo(next) {
		return &domain.TransitionError{Entity: "loan", From: string(loan.Status), To: string(next)}
	}

	loan.Status = next

	return nil
}

// publish hands the event to the publisher. Delivery failures are logged, the
// command they report on has already been committed.
func (s *Service) publish(ctx context.Context, loan domain.Loan, t domain.EventType, actor domain.Actor, amount decimal.Decimal, reason string) {
	e := domain.NewEvent(t, loan.ID, actor.Username)
	e.ClientID = loan.ClientID
	e.Status = string(loan.Status)
	e.Amount = amount
	e.Balance = loan.OutstandingBalance
	e.Reason = reason

	if err := s.publisher.Publish(ctx, e); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("event", string(t)).Str("loan_id", loan.ID.String()).Msg("publish event")
		metrics.EventsPublished.WithLabelValues(string(t), "failed").Inc()

		return
	}

	metrics.EventsPublished.WithLabelValues(string(t), "ok").Inc()
}
