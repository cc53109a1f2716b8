package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/models"
)

type BidService interface {
	PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (*models.Bid, error)
	BidsFor(ctx context.Context, auctionID uuid.UUID, pageToken string, limit int) ([]*models.Bid, string, error)
	CurrentHighest(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error)
	Subscribe(ctx context.Context, auctionID uuid.UUID) (<-chan models.Bid, error)
}

// BidHandler serves /api/v1/auctions/{id}/... bid endpoints.
type BidHandler struct {
	Bids   BidService
	Logger *slog.Logger
	// Heartbeat is the keep-alive interval of the highest-bid stream.
	Heartbeat time.Duration
}

// --- POST /api/v1/auctions/{id}/bids ---

type placeBidRequest struct {
	Amount int64 `json:"amount"`
}

func (h *BidHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	auctionID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, "invalid JSON")
		return
	}
	b, err := h.Bids.PlaceBid(r.Context(), auctionID, userID, req.Amount)
	if err != nil {
		writeDomainError(w, h.Logger, "place bid", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// --- GET /api/v1/auctions/{id}/bids ---

func (h *BidHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := pathID(w, r)
	if !ok {
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ReasonValidation, "limit must be a positive integer")
			return
		}
		limit = n
	}
	page, next, err := h.Bids.BidsFor(r.Context(), auctionID, r.URL.Query().Get("pageToken"), limit)
	if err != nil {
		writeDomainError(w, h.Logger, "list bids", err)
		return
	}
	if page == nil {
		page = []*models.Bid{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": page, "nextPageToken": next})
}

// --- GET /api/v1/auctions/{id}/highest-bid ---

func (h *BidHandler) HighestBid(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.Bids.CurrentHighest(r.Context(), auctionID)
	if err != nil {
		writeDomainError(w, h.Logger, "highest bid", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bid": b})
}

// --- GET /api/v1/auctions/{id}/highest-bid/stream ---

// StreamHighestBid pushes each new highest bid as a server-sent event until the client leaves.
func (h *BidHandler) StreamHighestBid(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := pathID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "streaming unsupported")
		return
	}
	ch, err := h.Bids.Subscribe(r.Context(), auctionID)
	if err != nil {
		writeDomainError(w, h.Logger, "subscribe highest bid", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case b, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(b)
			if err != nil {
				h.Logger.Error("encode highest bid", "auction_id", auctionID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: highest-bid\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
