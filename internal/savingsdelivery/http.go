// Package savingsdelivery manages delivery layer of savings accounts.
package savingsdelivery

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/middleware"
	"github.com/go-petr/pet-lender/pkg/moneypkg"
	"github.com/go-petr/pet-lender/pkg/web"
)

// Service provides service layer interface needed by savings delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package savingsdelivery
type Service interface {
	Create(ctx context.Context, actor domain.Actor, arg domain.CreateSavingsParams) (domain.SavingsAccount, error)
	Approve(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.SavingsAccount, error)
	Deposit(ctx context.Context, actor domain.Actor, arg domain.SavingsTxParams) (domain.SavingsTxResult, error)
	Withdraw(ctx context.Context, actor domain.Actor, arg domain.SavingsTxParams) (domain.SavingsTxResult, error)
	PostInterest(ctx context.Context, actor domain.Actor, arg domain.SavingsTxParams) (domain.SavingsTxResult, error)
	Close(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.SavingsAccount, error)
	Get(ctx context.Context, id uuid.UUID) (domain.SavingsAccount, error)
	List(ctx context.Context, arg domain.ListSavingsParams) ([]domain.SavingsAccount, error)
}

// Handler facilitates savings delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns savings handler.
func NewHandler(ss Service) Handler {
	return Handler{service: ss}
}

type accountData struct {
	Account domain.SavingsAccount `json:"account"`
}

type uriRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}

func bindID(gctx *gin.Context) (uuid.UUID, bool) {
	var req uriRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return uuid.Nil, false
	}

	return uuid.MustParse(req.ID), true
}

type createRequest struct {
	ClientID     string     `json:"client_id" binding:"required"`
	AccountType  string     `json:"account_type" binding:"required,account_type"`
	TargetAmount *string    `json:"target_amount" binding:"omitempty,money"`
	MaturityDate *time.Time `json:"maturity_date"`
}

// Create handles http request to open a savings account.
func (h *Handler) Create(gctx *gin.Context) {
	var req createRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return
	}

	arg := domain.CreateSavingsParams{
		ClientID:     req.ClientID,
		AccountType:  domain.AccountType(req.AccountType),
		MaturityDate: req.MaturityDate,
	}

	if req.TargetAmount != nil {
		target, _ := moneypkg.Parse(*req.TargetAmount)
		arg.TargetAmount = &target
	}

	a, err := h.service.Create(gctx.Request.Context(), middleware.Actor(gctx), arg)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusCreated, web.Response{Data: accountData{a}})
}

// Get handles http request to get savings account.
func (h *Handler) Get(gctx *gin.Context) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	a, err := h.service.Get(gctx.Request.Context(), id)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: accountData{a}})
}

type listRequest struct {
	ClientID string `form:"client_id"`
	Status   string `form:"status" binding:"omitempty,oneof=pending_approval active closed"`
	PageID   int32  `form:"page_id" binding:"required,min=1"`
	PageSize int32  `form:"page_size" binding:"required,min=1,max=100"`
}

// List handles http request to list savings accounts.
func (h *Handler) List(gctx *gin.Context) {
	var req listRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return
	}

	accounts, err := h.service.List(gctx.Request.Context(), domain.ListSavingsParams{
		ClientID: req.ClientID,
		Status:   domain.SavingsStatus(req.Status),
		Limit:    req.PageSize,
		Offset:   (req.PageID - 1) * req.PageSize,
	})
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: struct {
		Accounts []domain.SavingsAccount `json:"accounts"`
	}{accounts}})
}

// Approve handles http request to activate a pending savings account.
func (h *Handler) Approve(gctx *gin.Context) {
	h.transition(gctx, h.service.Approve)
}

// Close handles http request to close an emptied savings account.
func (h *Handler) Close(gctx *gin.Context) {
	h.transition(gctx, h.service.Close)
}

func (h *Handler) transition(gctx *gin.Context, fn func(context.Context, domain.Actor, uuid.UUID) (domain.SavingsAccount, error)) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	a, err := fn(gctx.Request.Context(), middleware.Actor(gctx), id)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: accountData{a}})
}

type txRequest struct {
	Amount    string `json:"amount" binding:"required,money"`
	Reference string `json:"reference"`
}

// Deposit handles http request to credit a savings account.
func (h *Handler) Deposit(gctx *gin.Context) {
	h.post(gctx, h.service.Deposit)
}

// Withdraw handles http request to debit a savings account.
func (h *Handler) Withdraw(gctx *gin.Context) {
	h.post(gctx, h.service.Withdraw)
}

// PostInterest handles http request to credit earned interest.
func (h *Handler) PostInterest(gctx *gin.Context) {
	h.post(gctx, h.service.PostInterest)
}

func (h *Handler) post(gctx *gin.Context,
	fn func(context.Context, domain.Actor, domain.SavingsTxParams) (domain.SavingsTxResult, error),
) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	var req txRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return
	}

	amount, _ := moneypkg.Parse(req.Amount)

	res, err := fn(gctx.Request.Context(), middleware.Actor(gctx), domain.SavingsTxParams{
		AccountID: id,
		Amount:    amount,
		Reference: req.Reference,
	})
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: res})
}
