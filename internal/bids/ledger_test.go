package bids

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/repository/memory"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestLedger(t *testing.T, now time.Time) (*Ledger, *memory.Store, *models.Auction) {
	t.Helper()
	st := memory.New()
	a := &models.Auction{
		ID:          uuid.New(),
		SellerID:    uuid.New(),
		ProductID:   uuid.New(),
		Title:       "Vintage camera",
		StartingBid: 100,
		EndTime:     now.Add(time.Hour),
		Status:      models.AuctionStatusActive,
	}
	st.PutAuction(a)
	l := NewLedger(st, st, NewLocalBroadcaster(), testLogger)
	l.now = func() time.Time { return now }
	return l, st, a
}

func TestHighestBidTieBreaksOnEarliest(t *testing.T) {
	t1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, st, a := newTestLedger(t, t1)
	ctx := context.Background()
	bidderA, bidderB, bidderC := uuid.New(), uuid.New(), uuid.New()

	// A: 500 @ t1, B: 700 @ t2, C: 700 @ t3
	for i, bid := range []struct {
		user   uuid.UUID
		amount int64
	}{{bidderA, 500}, {bidderB, 700}, {bidderC, 700}} {
		at := t1.Add(time.Duration(i) * time.Minute)
		l.now = func() time.Time { return at }
		_, err := l.PlaceBid(ctx, a.ID, bid.user, bid.amount)
		require.NoError(t, err)
	}

	top, err := l.HighestBid(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, bidderB, top.UserID)
	assert.Equal(t, int64(700), top.Amount)

	cached, err := l.CurrentHighest(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, top.ID, cached.ID)

	before, err := st.HighestBid(ctx, a.ID, t1.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, bidderA, before.UserID)
}

func TestHighestBidEmpty(t *testing.T) {
	l, _, a := newTestLedger(t, time.Now())
	top, err := l.HighestBid(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Nil(t, top)
}

func TestPlaceBidRejections(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, st, a := newTestLedger(t, now)
	ctx := context.Background()

	_, err := l.PlaceBid(ctx, a.ID, uuid.New(), 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = l.PlaceBid(ctx, a.ID, uuid.New(), 99)
	require.ErrorIs(t, err, ErrBelowStartingBid)
	_, err = l.PlaceBid(ctx, uuid.New(), uuid.New(), 150)
	require.ErrorIs(t, err, ErrAuctionNotFound)

	ended := *a
	ended.ID = uuid.New()
	ended.EndTime = now.Add(-time.Second)
	st.PutAuction(&ended)
	_, err = l.PlaceBid(ctx, ended.ID, uuid.New(), 150)
	require.ErrorIs(t, err, ErrAuctionNotOpen)
}

func TestBidsForPagination(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, _, a := newTestLedger(t, now)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		at := now.Add(time.Duration(i) * time.Second)
		l.now = func() time.Time { return at }
		_, err := l.PlaceBid(ctx, a.ID, uuid.New(), int64(100+i))
		require.NoError(t, err)
	}

	seen := map[uuid.UUID]bool{}
	token := ""
	pages := 0
	for {
		page, next, err := l.BidsFor(ctx, a.ID, token, 3)
		require.NoError(t, err)
		for _, b := range page {
			assert.False(t, seen[b.ID], "bid returned twice")
			seen[b.ID] = true
		}
		pages++
		if next == "" {
			break
		}
		token = next
	}
	assert.Len(t, seen, 7)
	assert.Equal(t, 3, pages)

	_, _, err := l.BidsFor(ctx, a.ID, "not-a-token!", 3)
	require.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestBiddersDistinct(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, _, a := newTestLedger(t, now)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	for i, bid := range []struct {
		user   uuid.UUID
		amount int64
	}{{alice, 100}, {bob, 150}, {alice, 200}, {bob, 180}} {
		at := now.Add(time.Duration(i) * time.Second)
		l.now = func() time.Time { return at }
		_, err := l.PlaceBid(ctx, a.ID, bid.user, bid.amount)
		require.NoError(t, err)
	}

	bidders, err := l.Bidders(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []BidderSummary{{UserID: alice, BestBid: 200}, {UserID: bob, BestBid: 180}}, bidders)

	tally, err := l.Tally(ctx, a.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, tally.BidCount)
	assert.Len(t, tally.Bidders, 2)

	// Only the first two bids were placed by the cutoff.
	tally, err = l.Tally(ctx, a.ID, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, tally.BidCount)
	assert.Equal(t, []BidderSummary{{UserID: bob, BestBid: 150}, {UserID: alice, BestBid: 100}}, tally.Bidders)
}

func TestConcurrentBidsAllRecorded(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, _, a := newTestLedger(t, now)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			_, err := l.PlaceBid(ctx, a.ID, uuid.New(), amount)
			assert.NoError(t, err)
		}(int64(100 + i))
	}
	wg.Wait()

	bidders, err := l.Bidders(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, bidders, 50)
	top, err := l.HighestBid(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(149), top.Amount)
}

func TestSubscribeReceivesNewHighest(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, _, a := newTestLedger(t, now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := l.Subscribe(ctx, a.ID)
	require.NoError(t, err)
	placed, err := l.PlaceBid(ctx, a.ID, uuid.New(), 300)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, placed.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("no highest-bid update received")
	}
}
