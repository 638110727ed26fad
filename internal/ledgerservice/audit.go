package ledgerservice

import (
	"context"
	"fmt"
	"iter"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Gateway authorizes privileged actions.
type Gateway interface {
	Authorize(actor domain.Actor, action domain.Action) error
}

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, e domain.Event) error
}

// Reverser reverses an entry of an account it owns and keeps the account record in
// line with the ledger.
type Reverser interface {
	ReverseEntry(ctx context.Context, actor domain.Actor, arg domain.ReverseEntryParams) (domain.LedgerEntry, error)
}

// Auditor exposes the staff facing ledger operations. Reversals and full
// verification are privileged.
type Auditor struct {
	ledger    *Service
	gateway   Gateway
	publisher Publisher
	reversers map[domain.AccountKind]Reverser
}

// NewAuditor returns Auditor over ledger. Reversals are handed to the reverser
// registered for the kind of the account.
func NewAuditor(ledger *Service, gateway Gateway, publisher Publisher, reversers map[domain.AccountKind]Reverser) *Auditor {
	return &Auditor{
		ledger:    ledger,
		gateway:   gateway,
		publisher: publisher,
		reversers: reversers,
	}
}

// Account returns the ledger head of accountID.
func (a *Auditor) Account(ctx context.Context, accountID uuid.UUID) (domain.LedgerAccount, error) {
	return a.ledger.Account(ctx, accountID)
}

// History returns the entries of accountID in sequence order.
func (a *Auditor) History(ctx context.Context, accountID uuid.UUID) iter.Seq2[domain.LedgerEntry, error] {
	return a.ledger.History(ctx, accountID)
}

// Verify checks the whole ledger of accountID on behalf of actor.
func (a *Auditor) Verify(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (domain.LedgerAccount, error) {
	if err := a.gateway.Authorize(actor, domain.ActionVerifyLedger); err != nil {
		return domain.LedgerAccount{}, err
	}

	return a.ledger.Verify(ctx, accountID)
}

// Reverse reverses arg.EntryID on behalf of actor and announces it.
func (a *Auditor) Reverse(ctx context.Context, actor domain.Actor, arg domain.ReverseEntryParams) (domain.LedgerEntry, error) {
	if err := a.gateway.Authorize(actor, domain.ActionReverseEntry); err != nil {
		return domain.LedgerEntry{}, err
	}

	arg.RecordedBy = actor.Username

	head, err := a.ledger.Account(ctx, arg.AccountID)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	r, ok := a.reversers[head.Kind]
	if !ok {
		return domain.LedgerEntry{}, fmt.Errorf("%w: %s ledgers take no reversals", domain.ErrInvalidStateTransition, head.Kind)
	}

	e, err := r.ReverseEntry(ctx, actor, arg)
	if err != nil {
		return e, err
	}

	ev := domain.NewEvent(domain.EventEntryReversed, e.AccountID, actor.Username)
	ev.Status = string(e.Type)
	ev.Amount = e.Amount
	ev.Balance = e.BalanceAfter
	ev.Reason = arg.Reason

	if err := a.publisher.Publish(ctx, ev); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("event", string(ev.Type)).Str("account_id", e.AccountID.String()).Msg("publish event")
		metrics.EventsPublished.WithLabelValues(string(ev.Type), "failed").Inc()

		return e, nil
	}

	metrics.EventsPublished.WithLabelValues(string(ev.Type), "ok").Inc()

	return e, nil
}
