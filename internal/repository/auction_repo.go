package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riplimit/backend/internal/models"
)

const auctionColumns = `id, seller_id, product_id, title, images, starting_bid, end_time, status, winner_id, winning_bid, bid_count, created_at, updated_at`

type AuctionRepo struct {
	pool *pgxpool.Pool
}

func NewAuctionRepo(pool *pgxpool.Pool) *AuctionRepo {
	return &AuctionRepo{pool: pool}
}

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var a models.Auction
	err := row.Scan(&a.ID, &a.SellerID, &a.ProductID, &a.Title, &a.Images, &a.StartingBid, &a.EndTime, &a.Status, &a.WinnerID, &a.WinningBid, &a.BidCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *AuctionRepo) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return scanAuction(r.pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
}

func (r *AuctionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Auction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+auctionColumns+`
		FROM auctions WHERE status = 'active' AND end_time <= $1
		ORDER BY end_time, id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []*models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, mapErr(rows.Err())
}

// GetForUpdateTx locks the auction row. Call within a transaction.
func (r *AuctionRepo) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Auction, error) {
	return scanAuction(tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, id))
}

func (r *AuctionRepo) UpdateTx(ctx context.Context, tx pgx.Tx, a *models.Auction) error {
	_, err := tx.Exec(ctx, `
		UPDATE auctions SET status = $2, winner_id = $3, winning_bid = $4, bid_count = $5, updated_at = $6
		WHERE id = $1
	`, a.ID, a.Status, a.WinnerID, a.WinningBid, a.BidCount, a.UpdatedAt)
	return mapErr(err)
}
