// Package ledgerrepo manages repository layer of ledgers.
package ledgerrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/pkg/dbpkg"
	"github.com/go-petr/pet-lender/pkg/errorspkg"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates ledger repository layer logic.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn dbpkg.Beginner
}

// NewRepoPGS returns ledger RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

// NewTxRepoPGS returns ledger RepoPGS running inside an already open transaction.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const createAccountQuery = `
INSERT INTO
    ledger_accounts (account_id, kind, balance, created_at)
VALUES
    ($1, $2, $3, $4)
RETURNING account_id, kind, balance, last_sequence, halted, created_at
`

// CreateAccount creates the ledger head and then returns it.
func (r *RepoPGS) CreateAccount(ctx context.Context, arg domain.LedgerAccount) (domain.LedgerAccount, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createAccountQuery, arg.AccountID, arg.Kind, arg.Balance, arg.CreatedAt)

	a, err := scanAccount(row)
	if err != nil {
		l.Error().Err(err).Msgf("CreateAccount(ctx, %+v)", arg)

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "ledger_accounts_pkey" {
			return a, domain.ErrAccountExists
		}

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const getAccountQuery = `
SELECT
    account_id, kind, balance, last_sequence, halted, created_at
FROM ledger_accounts
WHERE account_id = $1
`

// GetAccount returns the ledger head of accountID.
func (r *RepoPGS) GetAccount(ctx context.Context, accountID uuid.UUID) (domain.LedgerAccount, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, getAccountQuery, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

func scanAccount(row *sql.Row) (domain.LedgerAccount, error) {
	var a domain.LedgerAccount

	err := row.Scan(
		&a.AccountID,
		&a.Kind,
		&a.Balance,
		&a.LastSequence,
		&a.Halted,
		&a.CreatedAt,
	)

	return a, err
}

const moveHeadQuery = `
UPDATE ledger_accounts
SET
    balance = $2,
    last_sequence = $3
WHERE
    account_id = $1
    AND last_sequence = $4
    AND balance = $5
    AND NOT halted
`

const insertEntryQuery = `
INSERT INTO
    ledger_entries (
        id, account_id, sequence, type, amount, balance_before, balance_after,
        recorded_by, reference, reverses_id, created_at
    )
VALUES
    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + entryColumns

// Append stores e and moves the account head to it within a single transaction.
// The head only moves if it still ends right before e.
func (r *RepoPGS) Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	l := zerolog.Ctx(ctx)

	if r.conn == nil {
		return r.append(ctx, r.db, e)
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return domain.LedgerEntry{}, errorspkg.ErrInternal
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			l.Error().Err(err).Send()
		}
	}()

	stored, err := r.append(ctx, tx, e)
	if err != nil {
		return stored, err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return domain.LedgerEntry{}, errorspkg.ErrInternal
	}

	return stored, nil
}

func (r *RepoPGS) append(ctx context.Context, db dbpkg.SQLInterface, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	l := zerolog.Ctx(ctx)

	res, err := db.ExecContext(ctx, moveHeadQuery,
		e.AccountID, e.BalanceAfter, e.Sequence, e.Sequence-1, e.BalanceBefore)
	if err != nil {
		l.Error().Err(err).Send()
		return domain.LedgerEntry{}, errorspkg.ErrInternal
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return domain.LedgerEntry{}, errorspkg.ErrInternal
	}

	if n == 0 {
		return domain.LedgerEntry{}, r.headMismatch(ctx, db, e.AccountID)
	}

	row := db.QueryRowContext(ctx, insertEntryQuery,
		e.ID,
		e.AccountID,
		e.Sequence,
		e.Type,
		e.Amount,
		e.BalanceBefore,
		e.BalanceAfter,
		e.RecordedBy,
		e.Reference,
		e.ReversesID,
		e.CreatedAt,
	)

	stored, err := scanEntry(row)
	if err != nil {
		l.Error().Err(err).Msgf("Append(ctx, %+v)", e)

		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			case "ledger_entries_account_sequence_key":
				return stored, domain.ErrConcurrentModification
			case "ledger_entries_amount_check":
				return stored, domain.ErrInvalidAmount
			case "ledger_entries_balance_after_check":
				return stored, domain.ErrInsufficientBalance
			}
		}

		return stored, errorspkg.ErrInternal
	}

	return stored, nil
}

// headMismatch explains why the guarded head update matched no row.
func (r *RepoPGS) headMismatch(ctx context.Context, db dbpkg.SQLInterface, accountID uuid.UUID) error {
	a, err := scanAccount(db.QueryRowContext(ctx, getAccountQuery, accountID))

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrAccountNotFound
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Send()
		return errorspkg.ErrInternal
	case a.Halted:
		return domain.ErrLedgerCorrupted
	}

	return domain.ErrConcurrentModification
}

const entryColumns = `id, account_id, sequence, type, amount, balance_before, balance_after,
    recorded_by, reference, reverses_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry

	err := row.Scan(
		&e.ID,
		&e.AccountID,
		&e.Sequence,
		&e.Type,
		&e.Amount,
		&e.BalanceBefore,
		&e.BalanceAfter,
		&e.RecordedBy,
		&e.Reference,
		&e.ReversesID,
		&e.CreatedAt,
	)

	return e, err
}

const listEntriesQuery = `
SELECT ` + entryColumns + `
FROM ledger_entries
WHERE account_id = $1 AND sequence > $2
ORDER BY sequence
LIMIT $3
`

// ListEntries returns up to limit entries of accountID with a sequence above afterSequence.
func (r *RepoPGS) ListEntries(ctx context.Context, accountID uuid.UUID, afterSequence int64, limit int32) ([]domain.LedgerEntry, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listEntriesQuery, accountID, afterSequence, limit)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.LedgerEntry{}

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, e)
	}

	if err := rows.Close(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}

const getEntryQuery = `
SELECT ` + entryColumns + `
FROM ledger_entries
WHERE account_id = $1 AND id = $2
`

// GetEntry returns the entry entryID of accountID.
func (r *RepoPGS) GetEntry(ctx context.Context, accountID, entryID uuid.UUID) (domain.LedgerEntry, error) {
	l := zerolog.Ctx(ctx)

	e, err := scanEntry(r.db.QueryRowContext(ctx, getEntryQuery, accountID, entryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, domain.ErrEntryNotFound
		}

		l.Error().Err(err).Send()

		return e, errorspkg.ErrInternal
	}

	return e, nil
}

const isReversedQuery = `
SELECT EXISTS (
    SELECT 1 FROM ledger_entries r
    WHERE r.reverses_id = $1
      AND NOT EXISTS (SELECT 1 FROM ledger_entries c WHERE c.reverses_id = r.id)
)
`

// IsReversed reports whether entryID has a reversal that was not reversed itself.
func (r *RepoPGS) IsReversed(ctx context.Context, entryID uuid.UUID) (bool, error) {
	var exists bool

	if err := r.db.QueryRowContext(ctx, isReversedQuery, entryID).Scan(&exists); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Send()
		return false, errorspkg.ErrInternal
	}

	return exists, nil
}

const deleteAccountQuery = `
DELETE FROM ledger_accounts WHERE account_id = $1 AND last_sequence = 0
`

// DeleteAccount removes the ledger head of accountID unless entries were posted to it.
func (r *RepoPGS) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	l := zerolog.Ctx(ctx)

	res, err := r.db.ExecContext(ctx, deleteAccountQuery, accountID)
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	if n == 0 {
		if _, err := r.GetAccount(ctx, accountID); err != nil {
			return err
		}

		return fmt.Errorf("%w: ledger %s has entries", domain.ErrInvalidStateTransition, accountID)
	}

	return nil
}

const haltQuery = `
UPDATE ledger_accounts SET halted = TRUE WHERE account_id = $1
`

// Halt marks accountID as corrupted.
func (r *RepoPGS) Halt(ctx context.Context, accountID uuid.UUID) error {
	l := zerolog.Ctx(ctx)

	res, err := r.db.ExecContext(ctx, haltQuery, accountID)
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	if n == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}
