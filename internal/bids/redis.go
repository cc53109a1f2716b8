package bids

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/riplimit/backend/internal/models"
)

// setIfHigher stores and publishes the bid only when it outranks the cached one, so
// out-of-order publishes cannot regress the cache.
var setIfHigher = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local c = cjson.decode(cur)
	local amount = tonumber(ARGV[2])
	local ts = tonumber(ARGV[3])
	if c.amount > amount or (c.amount == amount and c.tsMicro <= ts) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[4])
redis.call('PUBLISH', KEYS[2], ARGV[1])
return 1
`)

type cachedBid struct {
	models.Bid
	TSMicro int64 `json:"tsMicro"`
}

// RedisBroadcaster caches the highest bid per auction and publishes it on a pub/sub channel.
type RedisBroadcaster struct {
	client *redis.Client
	ttl    int64
	logger *slog.Logger
}

func NewRedisBroadcaster(client *redis.Client, ttlMillis int64, logger *slog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, ttl: ttlMillis, logger: logger}
}

var _ Broadcaster = (*RedisBroadcaster)(nil)

func highestKey(auctionID uuid.UUID) string { return "riplimit:auction:" + auctionID.String() + ":highest" }

func channelName(auctionID uuid.UUID) string { return "riplimit:auction:" + auctionID.String() }

func (r *RedisBroadcaster) PublishHighest(ctx context.Context, b *models.Bid) error {
	payload, err := json.Marshal(cachedBid{Bid: *b, TSMicro: b.Timestamp.UnixMicro()})
	if err != nil {
		return err
	}
	keys := []string{highestKey(b.AuctionID), channelName(b.AuctionID)}
	if err := setIfHigher.Run(ctx, r.client, keys, payload, b.Amount, b.Timestamp.UnixMicro(), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis publish highest: %w", err)
	}
	return nil
}

func (r *RedisBroadcaster) CachedHighest(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	data, err := r.client.Get(ctx, highestKey(auctionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c cachedBid
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c.Bid, nil
}

func (r *RedisBroadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID) (<-chan models.Bid, error) {
	sub := r.client.Subscribe(ctx, channelName(auctionID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	out := make(chan models.Bid, 1)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var c cachedBid
				if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
					r.logger.Warn("decode highest bid message", "channel", m.Channel, "error", err)
					continue
				}
				select {
				case out <- c.Bid:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
