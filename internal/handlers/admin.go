package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/riplimit/backend/internal/auctions"
	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/orders"
)

type Settler interface {
	Settle(ctx context.Context, auctionID uuid.UUID) (*auctions.Result, error)
}

type SweepRunner interface {
	Run(ctx context.Context) (auctions.SweepReport, error)
}

type Crediter interface {
	Credit(ctx context.Context, userID uuid.UUID, amount int64, correlationID string) (*models.CurrencyTransaction, error)
}

type PaymentRecorder interface {
	RecordPayment(ctx context.Context, orderID uuid.UUID, outcome orders.PaymentOutcome) (*models.Order, error)
}

// AdminHandler serves /api/v1/admin endpoints. Callers must hold the admin role.
type AdminHandler struct {
	Engine   Settler
	Sweeper  SweepRunner
	Ledger   Crediter
	Payments PaymentRecorder
	Logger   *slog.Logger
}

// --- POST /api/v1/admin/auctions/{id}/settle ---

func (h *AdminHandler) SettleAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.Settle(r.Context(), auctionID)
	if err != nil {
		writeDomainError(w, h.Logger, "settle auction", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- POST /api/v1/admin/sweeps ---

type sweepResponse struct {
	auctions.SweepReport
	Errors []string `json:"errors"`
}

// RunSweep runs one sweep synchronously. Per-auction failures are reported, not returned
// as an HTTP error.
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.Sweeper.Run(r.Context())
	resp := sweepResponse{SweepReport: report, Errors: []string{}}
	for _, e := range multierr.Errors(err) {
		resp.Errors = append(resp.Errors, e.Error())
	}
	if err != nil && report.Scanned == 0 {
		writeDomainError(w, h.Logger, "run sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- POST /api/v1/admin/riplimit/credits ---

type creditRequest struct {
	UserID        string `json:"userId"`
	Amount        int64  `json:"amount"`
	CorrelationID string `json:"correlationId"`
}

// Credit records a purchase of RipLimit confirmed by the payment gateway.
func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, "invalid JSON")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, "invalid userId")
		return
	}
	tx, err := h.Ledger.Credit(r.Context(), userID, req.Amount, req.CorrelationID)
	if err != nil {
		writeDomainError(w, h.Logger, "credit", err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// --- POST /api/v1/admin/orders/{id}/payment ---

func (h *AdminHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req orders.PaymentOutcome
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, "invalid JSON")
		return
	}
	o, err := h.Payments.RecordPayment(r.Context(), orderID, req)
	if err != nil {
		writeDomainError(w, h.Logger, "record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
