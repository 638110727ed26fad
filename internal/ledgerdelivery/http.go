// Package ledgerdelivery manages delivery layer of ledgers.
package ledgerdelivery

import (
	"context"
	"iter"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/middleware"
	"github.com/go-petr/pet-lender/pkg/web"
)

// Service provides service layer interface needed by ledger delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package ledgerdelivery
type Service interface {
	Account(ctx context.Context, accountID uuid.UUID) (domain.LedgerAccount, error)
	History(ctx context.Context, accountID uuid.UUID) iter.Seq2[domain.LedgerEntry, error]
	Verify(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (domain.LedgerAccount, error)
	Reverse(ctx context.Context, actor domain.Actor, arg domain.ReverseEntryParams) (domain.LedgerEntry, error)
}

// Handler facilitates ledger delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns ledger handler.
func NewHandler(ls Service) Handler {
	return Handler{service: ls}
}

type accountData struct {
	Account domain.LedgerAccount `json:"account"`
}

type uriRequest struct {
	AccountID string `uri:"account_id" binding:"required,uuid"`
}

func bindAccountID(gctx *gin.Context) (uuid.UUID, bool) {
	var req uriRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return uuid.Nil, false
	}

	return uuid.MustParse(req.AccountID), true
}

// Account handles http request to get the ledger head.
func (h *Handler) Account(gctx *gin.Context) {
	id, ok := bindAccountID(gctx)
	if !ok {
		return
	}

	a, err := h.service.Account(gctx.Request.Context(), id)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: accountData{a}})
}

type entriesRequest struct {
	After int64 `form:"after" binding:"min=0"`
	Limit int   `form:"limit" binding:"omitempty,min=1,max=500"`
}

// DefaultEntriesLimit is the page size of Entries when none is requested.
const DefaultEntriesLimit = 50

type entriesData struct {
	Entries []domain.LedgerEntry `json:"entries"`
	// NextAfter is the sequence to pass as after for the next page, 0 on the last page.
	NextAfter int64 `json:"next_after,omitempty"`
}

// Entries handles http request to page through the ledger in sequence order.
func (h *Handler) Entries(gctx *gin.Context) {
	id, ok := bindAccountID(gctx)
	if !ok {
		return
	}

	var req entriesRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return
	}

	if req.Limit == 0 {
		req.Limit = DefaultEntriesLimit
	}

	data := entriesData{Entries: []domain.LedgerEntry{}}

	for e, err := range h.service.History(gctx.Request.Context(), id) {
		if err != nil {
			middleware.RespondError(gctx, err)
			return
		}

		if e.Sequence <= req.After {
			continue
		}

		if len(data.Entries) == req.Limit {
			data.NextAfter = data.Entries[len(data.Entries)-1].Sequence
			break
		}

		data.Entries = append(data.Entries, e)
	}

	gctx.JSON(http.StatusOK, web.Response{Data: data})
}

// Verify handles http request to check the balance chain of a ledger.
func (h *Handler) Verify(gctx *gin.Context) {
	id, ok := bindAccountID(gctx)
	if !ok {
		return
	}

	a, err := h.service.Verify(gctx.Request.Context(), middleware.Actor(gctx), id)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: accountData{a}})
}

type reverseRequest struct {
	EntryID string `json:"entry_id" binding:"required,uuid"`
	Reason  string `json:"reason" binding:"required"`
}

// Reverse handles http request to reverse a ledger entry.
func (h *Handler) Reverse(gctx *gin.Context) {
	id, ok := bindAccountID(gctx)
	if !ok {
		return
	}

	var req reverseRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondInvalid(gctx, err)
		return
	}

	e, err := h.service.Reverse(gctx.Request.Context(), middleware.Actor(gctx), domain.ReverseEntryParams{
		AccountID: id,
		EntryID:   uuid.MustParse(req.EntryID),
		Reason:    req.Reason,
	})
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: struct {
		Entry domain.LedgerEntry `json:"entry"`
	}{e}})
}
