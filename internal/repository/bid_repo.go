package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/store"
)

// BidRepo only ever inserts; bids are never updated or deleted.
type BidRepo struct {
	pool *pgxpool.Pool
}

func NewBidRepo(pool *pgxpool.Pool) *BidRepo {
	return &BidRepo{pool: pool}
}

func (r *BidRepo) InsertBid(ctx context.Context, b *models.Bid) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bids (id, auction_id, user_id, amount, "timestamp")
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.AuctionID, b.UserID, b.Amount, b.Timestamp)
	return mapErr(err)
}

func (r *BidRepo) HighestBid(ctx context.Context, auctionID uuid.UUID, cutoff time.Time) (*models.Bid, error) {
	var b models.Bid
	err := r.pool.QueryRow(ctx, `
		SELECT id, auction_id, user_id, amount, "timestamp"
		FROM bids WHERE auction_id = $1 AND "timestamp" <= $2
		ORDER BY amount DESC, "timestamp", id
		LIMIT 1
	`, auctionID, cutoff).Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

func (r *BidRepo) ListBids(ctx context.Context, auctionID uuid.UUID, after *store.BidCursor, limit int) ([]*models.Bid, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = r.pool.Query(ctx, `
			SELECT id, auction_id, user_id, amount, "timestamp"
			FROM bids WHERE auction_id = $1
			ORDER BY "timestamp", id
			LIMIT $2
		`, auctionID, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, auction_id, user_id, amount, "timestamp"
			FROM bids WHERE auction_id = $1 AND ("timestamp", id) > ($2, $3)
			ORDER BY "timestamp", id
			LIMIT $4
		`, auctionID, after.Timestamp, after.ID, limit)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []*models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.Timestamp); err != nil {
			return nil, err
		}
		list = append(list, &b)
	}
	return list, mapErr(rows.Err())
}
