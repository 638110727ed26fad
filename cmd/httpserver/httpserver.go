// Package httpserver manages server creation and api routing.
package httpserver

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-lender/internal/approval"
	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/ledgerdelivery"
	"github.com/go-petr/pet-lender/internal/ledgerrepo"
	"github.com/go-petr/pet-lender/internal/ledgerservice"
	"github.com/go-petr/pet-lender/internal/loandelivery"
	"github.com/go-petr/pet-lender/internal/loanrepo"
	"github.com/go-petr/pet-lender/internal/loanservice"
	"github.com/go-petr/pet-lender/internal/memstore"
	"github.com/go-petr/pet-lender/internal/middleware"
	"github.com/go-petr/pet-lender/internal/pricing"
	"github.com/go-petr/pet-lender/internal/rateschedule"
	"github.com/go-petr/pet-lender/internal/savingsdelivery"
	"github.com/go-petr/pet-lender/internal/savingsrepo"
	"github.com/go-petr/pet-lender/internal/savingsservice"
	"github.com/go-petr/pet-lender/pkg/configpkg"
	"github.com/go-petr/pet-lender/pkg/moneypkg"
	"github.com/go-petr/pet-lender/pkg/tokenpkg"
)

// Publisher delivers domain events.
type Publisher interface {
	loanservice.Publisher
	savingsservice.Publisher
	ledgerservice.Publisher
}

// Server holds db connection, handlers router and configuration.
type Server struct {
	// DB is nil when the memory store is used.
	DB      *sql.DB
	Engine  *gin.Engine
	Config  configpkg.Config
	Loans   *loanservice.Service
	Savings *savingsservice.Service
	Ledger  *ledgerservice.Service
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

type repos struct {
	ledger  ledgerservice.Repo
	loans   loanservice.Repo
	savings savingsservice.Repo
}

func newRepos(conn *sql.DB) repos {
	if conn == nil {
		return repos{
			ledger:  memstore.NewLedger(),
			loans:   memstore.NewLoans(),
			savings: memstore.NewSavings(),
		}
	}

	return repos{
		ledger:  ledgerrepo.NewRepoPGS(conn),
		loans:   loanrepo.NewRepoPGS(conn),
		savings: savingsrepo.NewRepoPGS(conn),
	}
}

// New creates Server type with instantiated domains and routes. A nil conn
// keeps all state in memory.
func New(conn *sql.DB, logger zerolog.Logger, config configpkg.Config, publisher Publisher) (*Server, error) {
	rates := rateschedule.Default()

	if config.RateSchedulePath != "" {
		var err error

		rates, err = rateschedule.Load(config.RateSchedulePath)
		if err != nil {
			return nil, fmt.Errorf("cannot load rate schedule: %w", err)
		}
	}

	tokenMaker, err := tokenpkg.NewMaker(config.TokenType, config.TokenSymmetricKey)
	if err != nil {
		return nil, fmt.Errorf("cannot create token maker: %w", err)
	}

	r := newRepos(conn)
	gateway := approval.New(nil)

	ledgerService := ledgerservice.New(r.ledger, config.HistoryPageSize)
	loanService := loanservice.New(r.loans, pricing.New(rates), ledgerService, gateway, publisher)
	savingsService := savingsservice.New(r.savings, ledgerService, gateway, publisher)
	auditor := ledgerservice.NewAuditor(ledgerService, gateway, publisher, map[domain.AccountKind]ledgerservice.Reverser{
		domain.KindLoan:    loanService,
		domain.KindSavings: savingsService,
	})

	loanHandler := loandelivery.NewHandler(loanService, rates)
	savingsHandler := savingsdelivery.NewHandler(savingsService)
	ledgerHandler := ledgerdelivery.NewHandler(auditor)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRoutes := engine.Group("/").Use(middleware.AuthMiddleware(tokenMaker))

	authRoutes.GET("/rates", loanHandler.Rates)

	authRoutes.POST("/loans/quote", loanHandler.Quote)
	authRoutes.POST("/loans", loanHandler.Apply)
	authRoutes.GET("/loans", loanHandler.List)
	authRoutes.GET("/loans/:id", loanHandler.Get)
	authRoutes.GET("/loans/:id/schedule", loanHandler.Schedule)
	authRoutes.POST("/loans/:id/approve", loanHandler.Approve)
	authRoutes.POST("/loans/:id/reject", loanHandler.Reject)
	authRoutes.POST("/loans/:id/disburse", loanHandler.Disburse)
	authRoutes.POST("/loans/:id/repayments", loanHandler.Repay)
	authRoutes.POST("/loans/:id/default", loanHandler.MarkDefaulted)

	authRoutes.POST("/savings", savingsHandler.Create)
	authRoutes.GET("/savings", savingsHandler.List)
	authRoutes.GET("/savings/:id", savingsHandler.Get)
	authRoutes.POST("/savings/:id/approve", savingsHandler.Approve)
	authRoutes.POST("/savings/:id/deposits", savingsHandler.Deposit)
	authRoutes.POST("/savings/:id/withdrawals", savingsHandler.Withdraw)
	authRoutes.POST("/savings/:id/interest", savingsHandler.PostInterest)
	authRoutes.POST("/savings/:id/close", savingsHandler.Close)

	authRoutes.GET("/ledger/:account_id", ledgerHandler.Account)
	authRoutes.GET("/ledger/:account_id/entries", ledgerHandler.Entries)
	authRoutes.POST("/ledger/:account_id/verify", ledgerHandler.Verify)
	authRoutes.POST("/ledger/:account_id/reversals", ledgerHandler.Reverse)

	if err := registerValidators(); err != nil {
		return nil, err
	}

	server := &Server{
		DB:      conn,
		Engine:  engine,
		Config:  config,
		Loans:   loanService,
		Savings: savingsService,
		Ledger:  ledgerService,
	}

	return server, nil
}

func registerValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}

	validators := map[string]validator.Func{
		"money":        moneypkg.ValidMoney,
		"frequency":    loandelivery.ValidFrequency,
		"method":       loandelivery.ValidMethod,
		"account_type": savingsdelivery.ValidAccountType,
	}

	for tag, fn := range validators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("cannot register %s validator: %w", tag, err)
		}
	}

	return nil
}
