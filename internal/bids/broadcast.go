package bids

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/models"
)

// Broadcaster is the read-side highest-bid channel. It is a cache: the bid collection
// stays the source of truth.
type Broadcaster interface {
	PublishHighest(ctx context.Context, b *models.Bid) error
	// CachedHighest returns nil, nil on a cache miss.
	CachedHighest(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error)
	Subscribe(ctx context.Context, auctionID uuid.UUID) (<-chan models.Bid, error)
}

// LocalBroadcaster fans highest bids out to in-process subscribers.
type LocalBroadcaster struct {
	mu      sync.Mutex
	highest map[uuid.UUID]models.Bid
	subs    map[uuid.UUID]map[chan models.Bid]struct{}
}

func NewLocalBroadcaster() *LocalBroadcaster {
	return &LocalBroadcaster{
		highest: make(map[uuid.UUID]models.Bid),
		subs:    make(map[uuid.UUID]map[chan models.Bid]struct{}),
	}
}

func (l *LocalBroadcaster) PublishHighest(_ context.Context, b *models.Bid) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.highest[b.AuctionID]; ok && !b.Outbids(&cur) {
		return nil
	}
	l.highest[b.AuctionID] = *b
	for ch := range l.subs[b.AuctionID] {
		// Subscribers only care about the latest value; drop the stale one.
		select {
		case <-ch:
		default:
		}
		ch <- *b
	}
	return nil
}

func (l *LocalBroadcaster) CachedHighest(_ context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.highest[auctionID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (l *LocalBroadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID) (<-chan models.Bid, error) {
	ch := make(chan models.Bid, 1)
	l.mu.Lock()
	if l.subs[auctionID] == nil {
		l.subs[auctionID] = make(map[chan models.Bid]struct{})
	}
	l.subs[auctionID][ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs[auctionID], ch)
		if len(l.subs[auctionID]) == 0 {
			delete(l.subs, auctionID)
		}
		close(ch)
		l.mu.Unlock()
	}()
	return ch, nil
}
