package loanrepo

import (
	"context"
	"database/sql"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/ledgerrepo"
	"github.com/go-petr/pet-lender/internal/pricing"
	"github.com/go-petr/pet-lender/internal/rateschedule"
	"github.com/go-petr/pet-lender/pkg/configpkg"
	"github.com/go-petr/pet-lender/pkg/dbpkg"
	"github.com/go-petr/pet-lender/pkg/randompkg"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq"
)

var (
	testRepo       *RepoPGS
	testLedgerRepo *ledgerrepo.RepoPGS
)

func TestMain(m *testing.M) {
	config, err := configpkg.Load("../../configs")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

	if config.DBDriver == "postgres" {
		testDB, err := sql.Open(config.DBDriver, config.DBSource)
		if err != nil {
			log.Fatal("cannot connect to db:", err)
		}

		if err := dbpkg.Migrate(config.DBSource, "../../db/migration"); err != nil {
			log.Fatal("cannot migrate db:", err)
		}

		testRepo = NewRepoPGS(testDB)
		testLedgerRepo = ledgerrepo.NewRepoPGS(testDB)
	}

	os.Exit(m.Run())
}

func requireDB(t *testing.T) {
	t.Helper()

	if testRepo == nil {
		t.Skip("DB_DRIVER is not postgres")
	}
}

func createRandomLoan(t *testing.T, clientID string) domain.Loan {
	t.Helper()

	ctx := context.Background()

	principal := randompkg.MoneyAmountBetween(1_000, 100_000)
	f := domain.Frequency(randompkg.Frequency())
	n := randompkg.IntBetween(1, 24)

	q, err := pricing.New(rateschedule.Default()).Quote(principal, f, n)
	require.NoError(t, err)

	id := uuid.New()

	_, err = testLedgerRepo.CreateAccount(ctx, domain.LedgerAccount{AccountID: id, Kind: domain.KindLoan, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	arg := domain.Loan{
		ID:              id,
		ClientID:        clientID,
		PrincipalAmount: principal,
		Frequency:       f,
		DurationValue:   n,
		Purpose:         "poultry feed",
		Guarantor1:      domain.Guarantor{Name: randompkg.Owner(), Phone: randompkg.Phone(), Address: randompkg.Address()},
		Guarantor2:      domain.Guarantor{Name: randompkg.Owner(), Phone: randompkg.Phone(), Address: randompkg.Address()},
		Status:          domain.LoanPendingApproval,
		Quote:           q,
		AppliedBy:       "olivia",
		AppliedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}

	loan, err := testRepo.Create(ctx, arg)
	require.NoError(t, err)

	require.Equal(t, arg.ID, loan.ID)
	require.Equal(t, arg.ClientID, loan.ClientID)
	require.True(t, arg.PrincipalAmount.Equal(loan.PrincipalAmount))
	require.Equal(t, arg.Guarantor1, loan.Guarantor1)
	require.Equal(t, arg.Guarantor2, loan.Guarantor2)
	require.Nil(t, loan.Collateral)
	require.True(t, arg.Quote.TotalRepayment.Equal(loan.Quote.TotalRepayment))
	require.True(t, arg.Quote.FinalInstallmentAmount.Equal(loan.Quote.FinalInstallmentAmount))
	require.Equal(t, int32(1), loan.Version)
	require.Nil(t, loan.ApprovedAt)

	return loan
}

func TestCreateGet(t *testing.T) {
	requireDB(t)

	loan := createRandomLoan(t, "client-"+randompkg.String(6))

	got, err := testRepo.Get(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, loan.ID, got.ID)
	require.Equal(t, loan.Status, got.Status)
	require.WithinDuration(t, loan.AppliedAt, got.AppliedAt, time.Second)

	_, err = testRepo.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestUpdate(t *testing.T) {
	requireDB(t)

	ctx := context.Background()
	loan := createRandomLoan(t, "client-"+randompkg.String(6))
	stale := loan

	now := time.Now().UTC()
	loan.Status = domain.LoanApproved
	loan.ApprovedBy = "mark"
	loan.ApprovedAt = &now
	loan.Collateral = &domain.Collateral{Type: "vehicle", Value: decimal.NewFromInt(250000), Description: "pickup"}

	updated, err := testRepo.Update(ctx, loan)
	require.NoError(t, err)
	require.Equal(t, domain.LoanApproved, updated.Status)
	require.Equal(t, "mark", updated.ApprovedBy)
	require.NotNil(t, updated.ApprovedAt)
	require.Equal(t, "vehicle", updated.Collateral.Type)
	require.Equal(t, int32(2), updated.Version)

	stale.Status = domain.LoanRejected
	_, err = testRepo.Update(ctx, stale)
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	missing := loan
	missing.ID = uuid.New()
	_, err = testRepo.Update(ctx, missing)
	require.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestList(t *testing.T) {
	requireDB(t)

	clientID := "client-" + randompkg.String(6)

	for i := 0; i < 4; i++ {
		createRandomLoan(t, clientID)
	}

	loans, err := testRepo.List(context.Background(), domain.ListLoansParams{ClientID: clientID})
	require.NoError(t, err)
	require.Len(t, loans, 4)

	for _, loan := range loans {
		require.Equal(t, clientID, loan.ClientID)
	}

	loans, err = testRepo.List(context.Background(), domain.ListLoansParams{ClientID: clientID, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, loans, 2)

	loans, err = testRepo.List(context.Background(), domain.ListLoansParams{ClientID: clientID, Status: domain.LoanActive})
	require.NoError(t, err)
	require.Empty(t, loans)
}
