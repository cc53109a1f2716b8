// Package bids is the append-only Bid Ledger plus its low-latency highest-bid channel.
package bids

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200

	publishTimeout = 2 * time.Second
)

var (
	ErrInvalidAmount    = errors.New("bid amount must be positive")
	ErrBelowStartingBid = errors.New("bid is below the starting bid")
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionNotOpen   = errors.New("auction is not accepting bids")
)

// endOfTime is the cutoff used when every stored bid counts.
var endOfTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// BidderSummary is one distinct bidder with their best bid on an auction.
type BidderSummary struct {
	UserID  uuid.UUID
	BestBid int64
}

type Ledger struct {
	auctions    store.AuctionRepository
	bids        store.BidRepository
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

func NewLedger(auctions store.AuctionRepository, bids store.BidRepository, broadcaster Broadcaster, logger *slog.Logger) *Ledger {
	if broadcaster == nil {
		broadcaster = NewLocalBroadcaster()
	}
	return &Ledger{auctions: auctions, bids: bids, broadcaster: broadcaster, logger: logger, now: time.Now}
}

// PlaceBid appends a bid. It does not compare against the current high bid; ranking
// happens on read. A bid that becomes the new highest is pushed to the broadcaster.
func (l *Ledger) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (*models.Bid, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	a, err := l.auctions.GetAuction(ctx, auctionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	now := l.now().UTC()
	if a.Status != models.AuctionStatusActive || !now.Before(a.EndTime) {
		return nil, ErrAuctionNotOpen
	}
	if amount < a.StartingBid {
		return nil, ErrBelowStartingBid
	}

	b := &models.Bid{ID: uuid.New(), AuctionID: auctionID, UserID: bidderID, Amount: amount, Timestamp: now}
	if err := l.bids.InsertBid(ctx, b); err != nil {
		return nil, fmt.Errorf("insert bid: %w", err)
	}
	l.publishIfHighest(ctx, b)
	return b, nil
}

func (l *Ledger) publishIfHighest(ctx context.Context, b *models.Bid) {
	top, err := l.bids.HighestBid(ctx, b.AuctionID, endOfTime)
	if err != nil || top == nil || top.ID != b.ID {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := l.broadcaster.PublishHighest(pctx, b); err != nil {
		l.logger.Warn("publish highest bid", "auction_id", b.AuctionID, "bid_id", b.ID, "error", err)
	}
}

// HighestBid returns the top bid from the full bid collection, or nil when there are none.
func (l *Ledger) HighestBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	return l.bids.HighestBid(ctx, auctionID, endOfTime)
}

// HighestBidAt ignores bids placed after cutoff.
func (l *Ledger) HighestBidAt(ctx context.Context, auctionID uuid.UUID, cutoff time.Time) (*models.Bid, error) {
	return l.bids.HighestBid(ctx, auctionID, cutoff)
}

// CurrentHighest serves the cached highest bid, falling back to the bid collection on a
// cache miss or cache error.
func (l *Ledger) CurrentHighest(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	b, err := l.broadcaster.CachedHighest(ctx, auctionID)
	if err != nil {
		l.logger.Warn("read cached highest bid", "auction_id", auctionID, "error", err)
	}
	if b != nil {
		return b, nil
	}
	return l.HighestBid(ctx, auctionID)
}

// Subscribe streams new highest bids for an auction until ctx is done.
func (l *Ledger) Subscribe(ctx context.Context, auctionID uuid.UUID) (<-chan models.Bid, error) {
	return l.broadcaster.Subscribe(ctx, auctionID)
}

// BidsFor returns one page of bids and the token for the next page ("" when done).
func (l *Ledger) BidsFor(ctx context.Context, auctionID uuid.UUID, pageToken string, limit int) ([]*models.Bid, string, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	after, err := decodeToken(pageToken)
	if err != nil {
		return nil, "", err
	}
	page, err := l.bids.ListBids(ctx, auctionID, after, limit)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(page) == limit {
		last := page[len(page)-1]
		next = encodeToken(store.BidCursor{Timestamp: last.Timestamp, ID: last.ID})
	}
	return page, next, nil
}

// Tally is the bid activity on one auction.
type Tally struct {
	// Bidders holds each distinct bidder once, best bid first.
	Bidders  []BidderSummary
	BidCount int
}

// Tally walks every page of the auction's bids, ignoring those placed after cutoff.
func (l *Ledger) Tally(ctx context.Context, auctionID uuid.UUID, cutoff time.Time) (Tally, error) {
	best := make(map[uuid.UUID]int64)
	count := 0
	token := ""
	for {
		page, next, err := l.BidsFor(ctx, auctionID, token, MaxPageSize)
		if err != nil {
			return Tally{}, err
		}
		for _, b := range page {
			if b.Timestamp.After(cutoff) {
				continue
			}
			count++
			if cur, ok := best[b.UserID]; !ok || b.Amount > cur {
				best[b.UserID] = b.Amount
			}
		}
		if next == "" {
			break
		}
		token = next
	}
	out := make([]BidderSummary, 0, len(best))
	for id, amount := range best {
		out = append(out, BidderSummary{UserID: id, BestBid: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BestBid != out[j].BestBid {
			return out[i].BestBid > out[j].BestBid
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return Tally{Bidders: out, BidCount: count}, nil
}

// Bidders returns each distinct bidder once, best bid first.
func (l *Ledger) Bidders(ctx context.Context, auctionID uuid.UUID) ([]BidderSummary, error) {
	t, err := l.Tally(ctx, auctionID, endOfTime)
	return t.Bidders, err
}
