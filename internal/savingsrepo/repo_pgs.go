// Package savingsrepo manages repository layer of savings accounts.
package savingsrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/pkg/dbpkg"
	"github.com/go-petr/pet-lender/pkg/errorspkg"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates savings repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns savings RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const savingsColumns = `id, client_id, account_type, balance, total_deposits, total_withdrawals,
    interest_earned, target_amount, maturity_date, status, created_by, approved_by,
    created_at, approved_at, closed_at, version`

const createQuery = `
INSERT INTO
    savings_accounts (` + savingsColumns + `)
VALUES
    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)
RETURNING ` + savingsColumns

// Create creates the savings account and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.SavingsAccount) (domain.SavingsAccount, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, createQuery, values(arg)...))
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %+v)", arg)

		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			case "savings_accounts_pkey":
				return a, domain.ErrConcurrentModification
			case "savings_accounts_id_fkey":
				return a, domain.ErrAccountNotFound
			}
		}

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const getQuery = `
SELECT ` + savingsColumns + `
FROM savings_accounts
WHERE id = $1
`

// Get returns the savings account with the given id.
func (r *RepoPGS) Get(ctx context.Context, id uuid.UUID) (domain.SavingsAccount, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, domain.ErrSavingsNotFound
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const updateQuery = `
UPDATE savings_accounts
SET
    client_id = $2,
    account_type = $3,
    balance = $4,
    total_deposits = $5,
    total_withdrawals = $6,
    interest_earned = $7,
    target_amount = $8,
    maturity_date = $9,
    status = $10,
    created_by = $11,
    approved_by = $12,
    created_at = $13,
    approved_at = $14,
    closed_at = $15,
    version = version + 1
WHERE id = $1 AND version = $16
RETURNING ` + savingsColumns

// Update stores arg if the stored version equals arg.Version.
func (r *RepoPGS) Update(ctx context.Context, arg domain.SavingsAccount) (domain.SavingsAccount, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, updateQuery, append(values(arg), arg.Version)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := r.Get(ctx, arg.ID); getErr != nil {
				return domain.SavingsAccount{}, getErr
			}

			return domain.SavingsAccount{}, domain.ErrConcurrentModification
		}

		l.Error().Err(err).Msgf("Update(ctx, %+v)", arg)

		return domain.SavingsAccount{}, errorspkg.ErrInternal
	}

	return a, nil
}

const listQuery = `
SELECT ` + savingsColumns + `
FROM savings_accounts
WHERE
    ($1 = '' OR client_id = $1)
    AND ($2 = '' OR status = $2)
ORDER BY created_at, id
LIMIT NULLIF($3, 0) OFFSET $4
`

// List returns the savings accounts matching arg.
func (r *RepoPGS) List(ctx context.Context, arg domain.ListSavingsParams) ([]domain.SavingsAccount, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listQuery, arg.ClientID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.SavingsAccount{}

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, a)
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

func values(a domain.SavingsAccount) []any {
	return []any{
		a.ID,
		a.ClientID,
		a.AccountType,
		a.Balance,
		a.TotalDeposits,
		a.TotalWithdrawals,
		a.InterestEarned,
		a.TargetAmount,
		a.MaturityDate,
		a.Status,
		a.CreatedBy,
		a.ApprovedBy,
		a.CreatedAt,
		a.ApprovedAt,
		a.ClosedAt,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (domain.SavingsAccount, error) {
	var a domain.SavingsAccount

	err := row.Scan(
		&a.ID,
		&a.ClientID,
		&a.AccountType,
		&a.Balance,
		&a.TotalDeposits,
		&a.TotalWithdrawals,
		&a.InterestEarned,
		&a.TargetAmount,
		&a.MaturityDate,
		&a.Status,
		&a.CreatedBy,
		&a.ApprovedBy,
		&a.CreatedAt,
		&a.ApprovedAt,
		&a.ClosedAt,
		&a.Version,
	)

	return a, err
}
