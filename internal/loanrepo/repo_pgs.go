// Package loanrepo manages repository layer of loans.
package loanrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/pkg/dbpkg"
	"github.com/go-petr/pet-lender/pkg/errorspkg"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates loan repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns loan RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const loanColumns = `id, client_id, principal_amount, frequency, duration_value, purpose,
    guarantor1, guarantor2, collateral, status, quote, outstanding_balance, amount_paid,
    rejection_reason, default_reason, applied_by, approved_by, disbursed_by,
    applied_at, approved_at, rejected_at, disbursed_at, completed_at, defaulted_at, version`

const createQuery = `
INSERT INTO
    loans (` + loanColumns + `)
VALUES
    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
     $19, $20, $21, $22, $23, $24, 1)
RETURNING ` + loanColumns

// Create creates the loan and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.Loan) (domain.Loan, error) {
	l := zerolog.Ctx(ctx)

	args, err := values(arg)
	if err != nil {
		l.Error().Err(err).Send()
		return domain.Loan{}, errorspkg.ErrInternal
	}

	loan, err := scanLoan(r.db.QueryRowContext(ctx, createQuery, args...))
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %+v)", arg)

		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			case "loans_pkey":
				return loan, domain.ErrConcurrentModification
			case "loans_id_fkey":
				return loan, domain.ErrAccountNotFound
			case "loans_principal_amount_check":
				return loan, domain.ErrInvalidAmount
			case "loans_duration_value_check":
				return loan, domain.ErrInvalidDuration
			}
		}

		return loan, errorspkg.ErrInternal
	}

	return loan, nil
}

const getQuery = `
SELECT ` + loanColumns + `
FROM loans
WHERE id = $1
`

// Get returns the loan with the given id.
func (r *RepoPGS) Get(ctx context.Context, id uuid.UUID) (domain.Loan, error) {
	l := zerolog.Ctx(ctx)

	loan, err := scanLoan(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return loan, domain.ErrLoanNotFound
		}

		l.Error().Err(err).Send()

		return loan, errorspkg.ErrInternal
	}

	return loan, nil
}

const updateQuery = `
UPDATE loans
SET
    client_id = $2,
    principal_amount = $3,
    frequency = $4,
    duration_value = $5,
    purpose = $6,
    guarantor1 = $7,
    guarantor2 = $8,
    collateral = $9,
    status = $10,
    quote = $11,
    outstanding_balance = $12,
    amount_paid = $13,
    rejection_reason = $14,
    default_reason = $15,
    applied_by = $16,
    approved_by = $17,
    disbursed_by = $18,
    applied_at = $19,
    approved_at = $20,
    rejected_at = $21,
    disbursed_at = $22,
    completed_at = $23,
    defaulted_at = $24,
    version = version + 1
WHERE id = $1 AND version = $25
RETURNING ` + loanColumns

// Update stores arg if the stored version equals arg.Version.
func (r *RepoPGS) Update(ctx context.Context, arg domain.Loan) (domain.Loan, error) {
	l := zerolog.Ctx(ctx)

	args, err := values(arg)
	if err != nil {
		l.Error().Err(err).Send()
		return domain.Loan{}, errorspkg.ErrInternal
	}

	loan, err := scanLoan(r.db.QueryRowContext(ctx, updateQuery, append(args, arg.Version)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the loan is gone or somebody else updated it first.
			if _, getErr := r.Get(ctx, arg.ID); getErr != nil {
				return domain.Loan{}, getErr
			}

			return domain.Loan{}, domain.ErrConcurrentModification
		}

		l.Error().Err(err).Msgf("Update(ctx, %+v)", arg)

		return domain.Loan{}, errorspkg.ErrInternal
	}

	return loan, nil
}

const listQuery = `
SELECT ` + loanColumns + `
FROM loans
WHERE
    ($1 = '' OR client_id = $1)
    AND ($2 = '' OR status = $2)
ORDER BY applied_at, id
LIMIT NULLIF($3, 0) OFFSET $4
`

// List returns the loans matching arg.
func (r *RepoPGS) List(ctx context.Context, arg domain.ListLoansParams) ([]domain.Loan, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listQuery, arg.ClientID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Loan{}

	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, loan)
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

// values returns the column values of loan in loanColumns order, without the version.
func values(loan domain.Loan) ([]any, error) {
	g1, err := json.Marshal(loan.Guarantor1)
	if err != nil {
		return nil, err
	}

	g2, err := json.Marshal(loan.Guarantor2)
	if err != nil {
		return nil, err
	}

	var collateral any
	if loan.Collateral != nil {
		b, err := json.Marshal(loan.Collateral)
		if err != nil {
			return nil, err
		}

		collateral = string(b)
	}

	quote, err := json.Marshal(loan.Quote)
	if err != nil {
		return nil, err
	}

	return []any{
		loan.ID,
		loan.ClientID,
		loan.PrincipalAmount,
		loan.Frequency,
		loan.DurationValue,
		loan.Purpose,
		string(g1),
		string(g2),
		collateral,
		loan.Status,
		string(quote),
		loan.OutstandingBalance,
		loan.AmountPaid,
		loan.RejectionReason,
		loan.DefaultReason,
		loan.AppliedBy,
		loan.ApprovedBy,
		loan.DisbursedBy,
		loan.AppliedAt,
		loan.ApprovedAt,
		loan.RejectedAt,
		loan.DisbursedAt,
		loan.CompletedAt,
		loan.DefaultedAt,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(row scanner) (domain.Loan, error) {
	var (
		loan                   domain.Loan
		g1, g2, collat, quote []byte
	)

	err := row.Scan(
		&loan.ID,
		&loan.ClientID,
		&loan.PrincipalAmount,
		&loan.Frequency,
		&loan.DurationValue,
		&loan.Purpose,
		&g1,
		&g2,
		&collat,
		&loan.Status,
		&quote,
		&loan.OutstandingBalance,
		&loan.AmountPaid,
		&loan.RejectionReason,
		&loan.DefaultReason,
		&loan.AppliedBy,
		&loan.ApprovedBy,
		&loan.DisbursedBy,
		&loan.AppliedAt,
		&loan.ApprovedAt,
		&loan.RejectedAt,
		&loan.DisbursedAt,
		&loan.CompletedAt,
		&loan.DefaultedAt,
		&loan.Version,
	)
	if err != nil {
		return loan, err
	}

	if err := json.Unmarshal(g1, &loan.Guarantor1); err != nil {
		return loan, err
	}

	if err := json.Unmarshal(g2, &loan.Guarantor2); err != nil {
		return loan, err
	}

	if collat != nil {
		loan.Collateral = &domain.Collateral{}
		if err := json.Unmarshal(collat, loan.Collateral); err != nil {
			return loan, err
		}
	}

	if err := json.Unmarshal(quote, &loan.Quote); err != nil {
		return loan, err
	}

	return loan, nil
}
