package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/refunds"
)

// LedgerReader is the read side of the currency account store.
type LedgerReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)
	History(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.CurrencyTransaction, error)
}

type RefundService interface {
	Decode(body []byte) (refunds.Request, error)
	Request(ctx context.Context, userID uuid.UUID, req refunds.Request) (*models.RefundRequest, error)
	History(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.RefundRequest, error)
}

// RipLimitHandler serves /api/v1/riplimit endpoints for the authenticated caller.
type RipLimitHandler struct {
	Ledger  LedgerReader
	Refunds RefundService
	Logger  *slog.Logger
}

// --- GET /api/v1/riplimit/balance ---

func (h *RipLimitHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bal, err := h.Ledger.GetBalance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, h.Logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// --- GET /api/v1/riplimit/transactions ---

func (h *RipLimitHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	before, limit, ok := listParams(w, r)
	if !ok {
		return
	}
	txs, err := h.Ledger.History(r.Context(), userID, before, limit)
	if err != nil {
		writeDomainError(w, h.Logger, "list transactions", err)
		return
	}
	if txs == nil {
		txs = []*models.CurrencyTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// --- POST /api/v1/riplimit/refunds ---

type refundResponse struct {
	RefundID       uuid.UUID           `json:"refundId"`
	RipLimitAmount int64               `json:"ripLimitAmount"`
	INRAmount      decimal.Decimal     `json:"inrAmount"`
	FeeAmount      decimal.Decimal     `json:"feeAmount"`
	NetAmount      decimal.Decimal     `json:"netAmount"`
	Status         models.RefundStatus `json:"status"`
}

// RequestRefund validates the body against the refund schema, then debits the caller's
// available balance and records the request.
func (h *RipLimitHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ReasonValidation, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, ReasonValidation, "failed to read body")
		return
	}
	req, err := h.Refunds.Decode(body)
	if err != nil {
		writeDomainError(w, h.Logger, "decode refund", err)
		return
	}
	rr, err := h.Refunds.Request(r.Context(), userID, req)
	if err != nil {
		writeDomainError(w, h.Logger, "request refund", err)
		return
	}
	writeJSON(w, http.StatusCreated, refundResponse{
		RefundID:       rr.ID,
		RipLimitAmount: rr.RipLimitAmount,
		INRAmount:      rr.INRAmount,
		FeeAmount:      rr.FeeAmount,
		NetAmount:      rr.NetAmount,
		Status:         rr.Status,
	})
}

// --- GET /api/v1/riplimit/refunds ---

func (h *RipLimitHandler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	before, limit, ok := listParams(w, r)
	if !ok {
		return
	}
	list, err := h.Refunds.History(r.Context(), userID, before, limit)
	if err != nil {
		writeDomainError(w, h.Logger, "list refunds", err)
		return
	}
	if list == nil {
		list = []*models.RefundRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"refunds": list})
}
