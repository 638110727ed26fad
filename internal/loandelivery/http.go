// Package loandelivery manages delivery layer of loans.
package loandelivery

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/middleware"
	"github.com/go-petr/pet-lender/pkg/moneypkg"
	"github.com/go-petr/pet-lender/pkg/web"
)

// Service provides service layer interface needed by loan delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package loandelivery
type Service interface {
	Quote(ctx context.Context, principal decimal.Decimal, f domain.Frequency, durationValue int) (domain.LoanQuote, error)
	Apply(ctx context.Context, actor domain.Actor, arg domain.ApplyLoanParams) (domain.Loan, error)
	Approve(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Loan, error)
	Reject(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (domain.Loan, error)
	Disburse(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Loan, error)
	Repay(ctx context.Context, actor domain.Actor, arg domain.RepayParams) (domain.RepaymentResult, error)
	MarkDefaulted(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (domain.Loan, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Loan, error)
	List(ctx context.Context, arg domain.ListLoansParams) ([]domain.Loan, error)
	Schedule(ctx context.Context, id uuid.UUID) ([]domain.Installment, error)
}

// RateTable lists the configured rate tiers.
type RateTable interface {
	All() []domain.RateTier
}

// Handler facilitates loan delivery layer logic.
type Handler struct {
	service Service
	rates   RateTable
}

// NewHandler returns loan handler.
func NewHandler(ls Service, rates RateTable) Handler {
	return Handler{service: ls, rates: rates}
}

type loanData struct {
	Loan domain.Loan `json:"loan"`
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

type quoteRequest struct {
	PrincipalAmount string `json:"principal_amount" binding:"required,money"`
	Frequency       string `json:"frequency" binding:"required,frequency"`
	DurationValue   int    `json:"duration_value" binding:"required,min=1,max=3650"`
}

// Quote handles http request to price a loan without applying for it.
func (h *Handler) Quote(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req quoteRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return
	}

	principal, _ := moneypkg.Parse(req.PrincipalAmount)

	q, err := h.service.Quote(ctx, principal, domain.Frequency(req.Frequency), req.DurationValue)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: struct {
		Quote domain.LoanQuote `json:"quote"`
	}{q}})
}

type guarantorRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (g guarantorRequest) toDomain() domain.Guarantor {
	return domain.Guarantor{Name: g.Name, Phone: g.Phone, Address: g.Address}
}

type collateralRequest struct {
	Type        string `json:"type" binding:"required"`
	Value       string `json:"value" binding:"required,money"`
	Description string `json:"description"`
}

type applyRequest struct {
	ClientID        string             `json:"client_id" binding:"required"`
	PrincipalAmount string             `json:"principal_amount" binding:"required,money"`
	Frequency       string             `json:"frequency" binding:"required,frequency"`
	DurationValue   int                `json:"duration_value" binding:"required,min=1,max=3650"`
	Purpose         string             `json:"purpose"`
	Guarantor1      guarantorRequest   `json:"guarantor1"`
	Guarantor2      guarantorRequest   `json:"guarantor2"`
	Collateral      *collateralRequest `json:"collateral"`
}

// Apply handles http request to submit a loan application.
func (h *Handler) Apply(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req applyRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return
	}

	principal, _ := moneypkg.Parse(req.PrincipalAmount)

	arg := domain.ApplyLoanParams{
		ClientID:        req.ClientID,
		PrincipalAmount: principal,
		Frequency:       domain.Frequency(req.Frequency),
		DurationValue:   req.DurationValue,
		Purpose:         req.Purpose,
		Guarantor1:      req.Guarantor1.toDomain(),
		Guarantor2:      req.Guarantor2.toDomain(),
	}

	if req.Collateral != nil {
		value, _ := moneypkg.Parse(req.Collateral.Value)
		arg.Collateral = &domain.Collateral{
			Type:        req.Collateral.Type,
			Value:       value,
			Description: req.Collateral.Description,
		}
	}

	loan, err := h.service.Apply(ctx, middleware.Actor(gctx), arg)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusCreated, web.Response{Data: loanData{loan}})
}

// Get handles http request to get loan.
func (h *Handler) Get(gctx *gin.Context) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	loan, err := h.service.Get(gctx.Request.Context(), id)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: loanData{loan}})
}

type listRequest struct {
	ClientID string `form:"client_id"`
	Status   string `form:"status" binding:"omitempty,oneof=draft pending_approval approved rejected disbursed active completed defaulted overdue"`
	PageID   int32  `form:"page_id" binding:"required,min=1"`
	PageSize int32  `form:"page_size" binding:"required,min=1,max=100"`
}

// List handles http request to list loans.
func (h *Handler) List(gctx *gin.Context) {
	var req listRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return
	}

	loans, err := h.service.List(gctx.Request.Context(), domain.ListLoansParams{
		ClientID: req.ClientID,
		Status:   domain.LoanStatus(req.Status),
		Limit:    req.PageSize,
		Offset:   (req.PageID - 1) * req.PageSize,
	})
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: struct {
		Loans []domain.Loan `json:"loans"`
	}{loans}})
}

// Approve handles http request to approve a pending loan.
func (h *Handler) Approve(gctx *gin.Context) {
	h.transition(gctx, h.service.Approve)
}

// Disburse handles http request to disburse an approved loan.
func (h *Handler) Disburse(gctx *gin.Context) {
	h.transition(gctx, h.service.Disburse)
}

func (h *Handler) transition(gctx *gin.Context, fn func(context.Context, domain.Actor, uuid.UUID) (domain.Loan, error)) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	loan, err := fn(gctx.Request.Context(), middleware.Actor(gctx), id)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: loanData{loan}})
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject handles http request to reject a pending loan.
func (h *Handler) Reject(gctx *gin.Context) {
	h.transitionWithReason(gctx, h.service.Reject)
}

// MarkDefaulted handles http request to write an active loan off.
func (h *Handler) MarkDefaulted(gctx *gin.Context) {
	h.transitionWithReason(gctx, h.service.MarkDefaulted)
}

func (h *Handler) transitionWithReason(gctx *gin.Context,
	fn func(context.Context, domain.Actor, uuid.UUID, string) (domain.Loan, error),
) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	var req reasonRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return
	}

	loan, err := fn(gctx.Request.Context(), middleware.Actor(gctx), id, req.Reason)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: loanData{loan}})
}

type repayRequest struct {
	Amount string `json:"amount" binding:"required,money"`
	Method string `json:"method" binding:"required,method"`
}

// Repay handles http request to post a repayment.
func (h *Handler) Repay(gctx *gin.Context) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	var req repayRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return
	}

	amount, _ := moneypkg.Parse(req.Amount)

	res, err := h.service.Repay(gctx.Request.Context(), middleware.Actor(gctx), domain.RepayParams{
		LoanID: id,
		Amount: amount,
		Method: domain.RepaymentMethod(req.Method),
	})
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: res})
}

// Schedule handles http request to get the installment plan of a loan.
func (h *Handler) Schedule(gctx *gin.Context) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	installments, err := h.service.Schedule(gctx.Request.Context(), id)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: struct {
		Installments []domain.Installment `json:"installments"`
	}{installments}})
}

// Rates handles http request to list the rate tiers.
func (h *Handler) Rates(gctx *gin.Context) {
	gctx.JSON(http.StatusOK, web.Response{Data: struct {
		Tiers []domain.RateTier `json:"tiers"`
	}{h.rates.All()}})
}
