package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/auctions"
	"github.com/riplimit/backend/internal/bids"
	"github.com/riplimit/backend/internal/ledger"
	"github.com/riplimit/backend/internal/middleware"
	"github.com/riplimit/backend/internal/orders"
	"github.com/riplimit/backend/internal/refunds"
	"github.com/riplimit/backend/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Machine-readable reasons carried in error bodies.
const (
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonAccountNotFound     = "account_not_found"
	ReasonUnpaidAuctionsHeld  = "unpaid_auctions_held"
	ReasonBelowMinimum        = "below_minimum"
	ReasonValidation          = "validation_error"
	ReasonNotFound            = "not_found"
	ReasonConflict            = "conflict"
	ReasonUnauthorized        = "unauthorized"
	ReasonInternal            = "internal"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Reason: reason})
}

// classify maps a domain error to its HTTP status and reason.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrInsufficientHeld):
		return http.StatusConflict, ReasonInsufficientBalance
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, ReasonAccountNotFound
	case errors.Is(err, refunds.ErrUnpaidAuctionsHeld):
		return http.StatusConflict, ReasonUnpaidAuctionsHeld
	case errors.Is(err, refunds.ErrBelowMinimum):
		return http.StatusUnprocessableEntity, ReasonBelowMinimum
	case errors.Is(err, refunds.ErrValidation),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, bids.ErrInvalidAmount),
		errors.Is(err, bids.ErrBelowStartingBid),
		errors.Is(err, bids.ErrInvalidPageToken),
		errors.Is(err, orders.ErrInvalidOutcome):
		return http.StatusUnprocessableEntity, ReasonValidation
	case errors.Is(err, bids.ErrAuctionNotFound),
		errors.Is(err, auctions.ErrAuctionNotFound),
		errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound, ReasonNotFound
	case errors.Is(err, bids.ErrAuctionNotOpen), errors.Is(err, auctions.ErrNotEnded),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict, ReasonConflict
	}
	return http.StatusInternalServerError, ReasonInternal
}

// writeDomainError logs unexpected failures and never leaks their text.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status, reason := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error(op, "error", err)
		writeError(w, status, reason, "internal error")
		return
	}
	writeError(w, status, reason, err.Error())
}

func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ReasonUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	return id.UserID, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// listParams reads ?before=<RFC3339>&limit=<n>.
func listParams(w http.ResponseWriter, r *http.Request) (*time.Time, int, bool) {
	q := r.URL.Query()
	limit := defaultListLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ReasonValidation, "limit must be a positive integer")
			return nil, 0, false
		}
		limit = min(n, maxListLimit)
	}
	var before *time.Time
	if s := q.Get("before"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, ReasonValidation, "before must be an RFC 3339 timestamp")
			return nil, 0, false
		}
		before = &t
	}
	return before, limit, true
}
