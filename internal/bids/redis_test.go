package bids

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riplimit/backend/internal/models"
)

func setupRedis(t *testing.T) *RedisBroadcaster {
	t.Helper()
	addr := os.Getenv("RIPLIMIT_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBroadcaster(client, time.Minute.Milliseconds(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRedisKeys(t *testing.T) {
	id := uuid.MustParse("6f1c3f0e-8a4b-4d6e-9a51-2b7f0c1d2e3f")
	assert.Equal(t, "riplimit:auction:6f1c3f0e-8a4b-4d6e-9a51-2b7f0c1d2e3f:highest", highestKey(id))
	assert.Equal(t, "riplimit:auction:6f1c3f0e-8a4b-4d6e-9a51-2b7f0c1d2e3f", channelName(id))
}

func TestRedisBroadcasterKeepsHighest(t *testing.T) {
	r := setupRedis(t)
	ctx := context.Background()
	auctionID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	miss, err := r.CachedHighest(ctx, auctionID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	high := &models.Bid{ID: uuid.New(), AuctionID: auctionID, UserID: uuid.New(), Amount: 500, Timestamp: now}
	low := &models.Bid{ID: uuid.New(), AuctionID: auctionID, UserID: uuid.New(), Amount: 300, Timestamp: now.Add(time.Second)}
	later := &models.Bid{ID: uuid.New(), AuctionID: auctionID, UserID: uuid.New(), Amount: 500, Timestamp: now.Add(time.Second)}

	require.NoError(t, r.PublishHighest(ctx, high))
	require.NoError(t, r.PublishHighest(ctx, low))
	require.NoError(t, r.PublishHighest(ctx, later))

	got, err := r.CachedHighest(ctx, auctionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, high.ID, got.ID, "an equal amount placed later does not replace the cached bid")
}

func TestRedisBroadcasterSubscribe(t *testing.T) {
	r := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	auctionID := uuid.New()

	ch, err := r.Subscribe(ctx, auctionID)
	require.NoError(t, err)

	b := &models.Bid{ID: uuid.New(), AuctionID: auctionID, UserID: uuid.New(), Amount: 120, Timestamp: time.Now().UTC()}
	require.NoError(t, r.PublishHighest(ctx, b))

	select {
	case got := <-ch:
		assert.Equal(t, b.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}
