package savingsdelivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/middleware"
	"github.com/go-petr/pet-lender/pkg/moneypkg"
	"github.com/go-petr/pet-lender/pkg/randompkg"
	"github.com/go-petr/pet-lender/pkg/tokenpkg"
	"github.com/go-petr/pet-lender/pkg/web"
)

var (
	tokenMaker tokenpkg.Maker

	officer = domain.Actor{Username: "olivia", Role: domain.RoleOfficer}
	manager = domain.Actor{Username: "mark", Role: domain.RoleManager}
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	var err error

	tokenMaker, err = tokenpkg.NewPasetoMaker(randompkg.String(32))
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokenpkg.NewPasetoMaker returned error: %v\n", err)
		os.Exit(1)
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("money", moneypkg.ValidMoney)
		_ = v.RegisterValidation("account_type", ValidAccountType)
	}

	os.Exit(m.Run())
}

func randomAccount() domain.SavingsAccount {
	balance := randompkg.MoneyAmountBetween(100, 10_000)

	return domain.SavingsAccount{
		ID:               uuid.New(),
		ClientID:         "client-" + randompkg.String(6),
		AccountType:      domain.AccountRegular,
		Balance:          balance,
		TotalDeposits:    balance,
		TotalWithdrawals: decimal.Zero,
		InterestEarned:   decimal.Zero,
		Status:           domain.SavingsActive,
		CreatedBy:        officer.Username,
		CreatedAt:        time.Now().UTC(),
		Version:          2,
	}
}

func newServer(service Service) *gin.Engine {
	h := NewHandler(service)

	server := gin.New()
	server.Use(middleware.AuthMiddleware(tokenMaker))
	server.POST("/savings", h.Create)
	server.GET("/savings", h.List)
	server.GET("/savings/:id", h.Get)
	server.POST("/savings/:id/approve", h.Approve)
	server.POST("/savings/:id/deposits", h.Deposit)
	server.POST("/savings/:id/withdrawals", h.Withdraw)
	server.POST("/savings/:id/interest", h.PostInterest)
	server.POST("/savings/:id/close", h.Close)

	return server
}

func serve(t *testing.T, server *gin.Engine, method, path string, body any, actor domain.Actor, data any) (int, web.Response) {
	t.Helper()

	b, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(method, path, bytes.NewReader(b))
	require.NoError(t, err)

	err = middleware.AddAuthorization(req, tokenMaker, middleware.AuthTypeBearer,
		actor.Username, string(actor.Role), time.Minute)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)

	res := web.Response{Data: data}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&res))

	return recorder.Code, res
}

type accountPayload struct {
	Account domain.SavingsAccount `json:"account"`
}

func TestCreate(t *testing.T) {
	maturity := time.Now().UTC().Add(180 * 24 * time.Hour).Truncate(time.Second)

	testCases := []struct {
		name           string
		body           gin.H
		buildStubs     func(service *MockService)
		wantStatusCode int
		wantError      string
		wantCategory   string
	}{
		{
			name: "Target",
			body: gin.H{"client_id": "client-1", "account_type": "target", "target_amount": "25000.00"},
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Create(gomock.Any(), gomock.Eq(officer), gomock.Any()).
					Times(1).
					DoAndReturn(func(_ context.Context, _ domain.Actor, arg domain.CreateSavingsParams) (domain.SavingsAccount, error) {
						require.Equal(t, domain.AccountTarget, arg.AccountType)
						require.NotNil(t, arg.TargetAmount)
						require.True(t, arg.TargetAmount.Equal(decimal.NewFromInt(25_000)))
						require.Nil(t, arg.MaturityDate)

						return domain.SavingsAccount{ID: uuid.New(), ClientID: arg.ClientID, AccountType: arg.AccountType,
							TargetAmount: arg.TargetAmount, Status: domain.SavingsPendingApproval}, nil
					})
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "Fixed",
			body: gin.H{"client_id": "client-1", "account_type": "fixed", "maturity_date": maturity},
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Create(gomock.Any(), gomock.Eq(officer), gomock.Any()).
					Times(1).
					DoAndReturn(func(_ context.Context, _ domain.Actor, arg domain.CreateSavingsParams) (domain.SavingsAccount, error) {
						require.NotNil(t, arg.MaturityDate)
						require.True(t, maturity.Equal(*arg.MaturityDate))

						return domain.SavingsAccount{ID: uuid.New(), ClientID: arg.ClientID, AccountType: arg.AccountType,
							MaturityDate: arg.MaturityDate, Status: domain.SavingsPendingApproval}, nil
					})
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "InvalidAccountType",
			body: gin.H{"client_id": "client-1", "account_type": "current"},
			buildStubs: func(service *MockService) {
				service.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "AccountType is not a supported account type",
			wantCategory:   "field",
		},
		{
			name: "InvalidTargetAmount",
			body: gin.H{"client_id": "client-1", "account_type": "target", "target_amount": "abc"},
			buildStubs: func(service *MockService) {
				service.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "TargetAmount must be a positive amount with at most 2 decimal places",
			wantCategory:   "field",
		},
		{
			name: "MissingTarget",
			body: gin.H{"client_id": "client-1", "account_type": "target"},
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Create(gomock.Any(), gomock.Eq(officer), gomock.Any()).
					Times(1).
					Return(domain.SavingsAccount{}, domain.ErrInvalidSavingsTarget)
			},
			wantStatusCode: http.StatusBadRequest,
			wantError:      domain.ErrInvalidSavingsTarget.Error(),
			wantCategory:   "field",
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			service := NewMockService(ctrl)
			tc.buildStubs(service)

			data := &accountPayload{}

			code, res := serve(t, newServer(service), http.MethodPost, "/savings", tc.body, officer, data)
			require.Equal(t, tc.wantStatusCode, code)
			require.Equal(t, tc.wantError, res.Error)
			require.Equal(t, tc.wantCategory, res.Category)

			if tc.wantStatusCode == http.StatusCreated {
				require.Equal(t, "client-1", data.Account.ClientID)
				require.Equal(t, domain.SavingsPendingApproval, data.Account.Status)
			}
		})
	}
}

func TestPost(t *testing.T) {
	account := randomAccount()
	base := "/savings/" + account.ID.String()

	result := func(typ domain.EntryType, amount, delta decimal.Decimal) domain.SavingsTxResult {
		a := account
		a.Balance = account.Balance.Add(delta)

		return domain.SavingsTxResult{
			Account: a,
			Entry: domain.LedgerEntry{
				ID:            uuid.New(),
				AccountID:     account.ID,
				Sequence:      2,
				Type:          typ,
				Amount:        amount,
				BalanceBefore: account.Balance,
				BalanceAfter:  a.Balance,
			},
		}
	}

	amount := decimal.RequireFromString("250.50")

	testCases := []struct {
		name           string
		path           string
		body           gin.H
		actor          domain.Actor
		buildStubs     func(service *MockService)
		wantStatusCode int
		wantError      string
		wantCategory   string
		wantBalance    decimal.Decimal
	}{
		{
			name:  "Deposit",
			path:  base + "/deposits",
			body:  gin.H{"amount": "250.50", "reference": "slip-9"},
			actor: officer,
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Deposit(gomock.Any(), gomock.Eq(officer), gomock.Any()).
					Times(1).
					DoAndReturn(func(_ context.Context, _ domain.Actor, arg domain.SavingsTxParams) (domain.SavingsTxResult, error) {
						require.Equal(t, account.ID, arg.AccountID)
						require.Equal(t, "slip-9", arg.Reference)
						require.True(t, amount.Equal(arg.Amount))

						return result(domain.EntryDeposit, amount, amount), nil
					})
			},
			wantStatusCode: http.StatusOK,
			wantBalance:    account.Balance.Add(amount),
		},
		{
			name:  "Withdraw",
			path:  base + "/withdrawals",
			body:  gin.H{"amount": "250.50"},
			actor: officer,
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Withdraw(gomock.Any(), gomock.Eq(officer), gomock.Any()).
					Times(1).
					Return(result(domain.EntryWithdrawal, amount, amount.Neg()), nil)
			},
			wantStatusCode: http.StatusOK,
			wantBalance:    account.Balance.Sub(amount),
		},
		{
			name:  "WithdrawInsufficientBalance",
			path:  base + "/withdrawals",
			body:  gin.H{"amount": "250.50"},
			actor: officer,
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Withdraw(gomock.Any(), gomock.Eq(officer), gomock.Any()).
					Times(1).
					Return(domain.SavingsTxResult{}, &domain.InsufficientBalanceError{
						AccountID: account.ID,
						Available: decimal.RequireFromString("100.00"),
						Requested: amount,
					})
			},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "insufficient balance: available 100.00, requested 250.50",
			wantCategory:   "account",
		},
		{
			name:  "InterestUnauthorized",
			path:  base + "/interest",
			body:  gin.H{"amount": "12.00"},
			actor: officer,
			buildStubs: func(service *MockService) {
				service.EXPECT().
					PostInterest(gomock.Any(), gomock.Eq(officer), gomock.Any()).
					Times(1).
					Return(domain.SavingsTxResult{}, domain.ErrUnauthorized)
			},
			wantStatusCode: http.StatusForbidden,
			wantError:      domain.ErrUnauthorized.Error(),
			wantCategory:   "auth",
		},
		{
			name:  "MissingAmount",
			path:  base + "/deposits",
			body:  gin.H{"reference": "slip-9"},
			actor: officer,
			buildStubs: func(service *MockService) {
				service.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "Amount field is required",
			wantCategory:   "field",
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			service := NewMockService(ctrl)
			tc.buildStubs(service)

			data := &domain.SavingsTxResult{}

			code, res := serve(t, newServer(service), http.MethodPost, tc.path, tc.body, tc.actor, data)
			require.Equal(t, tc.wantStatusCode, code)
			require.Equal(t, tc.wantError, res.Error)
			require.Equal(t, tc.wantCategory, res.Category)

			if tc.wantStatusCode == http.StatusOK {
				require.True(t, tc.wantBalance.Equal(data.Account.Balance))
				require.True(t, data.Entry.BalanceAfter.Equal(data.Account.Balance))
			}
		})
	}
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	account := randomAccount()
	base := "/savings/" + account.ID.String()

	ctrl := gomock.NewController(t)
	service := NewMockService(ctrl)
	server := newServer(service)

	service.EXPECT().Approve(gomock.Any(), gomock.Eq(manager), gomock.Eq(account.ID)).Times(1).Return(account, nil)

	data := &accountPayload{}
	code, _ := serve(t, server, http.MethodPost, base+"/approve", nil, manager, data)
	require.Equal(t, http.StatusOK, code)

	if diff := cmp.Diff(account, data.Account, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("res.Data mismatch (-want +got):\n%s", diff)
	}

	service.EXPECT().Close(gomock.Any(), gomock.Eq(manager), gomock.Eq(account.ID)).Times(1).Return(domain.SavingsAccount{}, domain.ErrBalanceNotZero)

	code, res := serve(t, server, http.MethodPost, base+"/close", nil, manager, nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, domain.ErrBalanceNotZero.Error(), res.Error)

	service.EXPECT().Get(gomock.Any(), gomock.Eq(account.ID)).Times(1).Return(domain.SavingsAccount{}, domain.ErrSavingsNotFound)

	code, res = serve(t, server, http.MethodGet, base, nil, officer, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "not_found", res.Category)

	service.EXPECT().
		List(gomock.Any(), gomock.Eq(domain.ListSavingsParams{Status: domain.SavingsActive, Limit: 5})).
		Times(1).
		Return([]domain.SavingsAccount{account}, nil)

	list := &struct {
		Accounts []domain.SavingsAccount `json:"accounts"`
	}{}
	code, _ = serve(t, server, http.MethodGet, "/savings?status=active&page_id=1&page_size=5", nil, officer, list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list.Accounts, 1)
	require.Equal(t, account.ID, list.Accounts[0].ID)
}
