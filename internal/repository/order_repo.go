package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riplimit/backend/internal/models"
)

const orderColumns = `id, order_number, auction_id, buyer_id, seller_id, items, subtotal, shipping, tax, total_amount, status, payment_status, payment, riplimit_held, created_at, updated_at`

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.AuctionID, &o.BuyerID, &o.SellerID, &o.Items, &o.Subtotal, &o.Shipping, &o.Tax, &o.TotalAmount, &o.Status, &o.PaymentStatus, &o.Payment, &o.RipLimitHeld, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}

func (r *OrderRepo) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *OrderRepo) GetOrderByAuction(ctx context.Context, auctionID uuid.UUID) (*models.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE auction_id = $1`, auctionID))
}

// CreateTx inserts the order inside the settlement transaction. The unique auction_id
// rejects a second order for the same auction.
func (r *OrderRepo) CreateTx(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, auction_id, buyer_id, seller_id, items, subtotal, shipping, tax, total_amount, status, payment_status, payment, riplimit_held, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, o.ID, o.OrderNumber, o.AuctionID, o.BuyerID, o.SellerID, o.Items, o.Subtotal, o.Shipping, o.Tax, o.TotalAmount, o.Status, o.PaymentStatus, o.Payment, o.RipLimitHeld, o.CreatedAt, o.UpdatedAt)
	return mapErr(err)
}

func (r *OrderRepo) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Order, error) {
	return scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *OrderRepo) UpdateTx(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, payment_status = $3, payment = $4, updated_at = $5
		WHERE id = $1
	`, o.ID, o.Status, o.PaymentStatus, o.Payment, o.UpdatedAt)
	return mapErr(err)
}

func (r *OrderRepo) CountPendingTx(ctx context.Context, tx pgx.Tx, buyerID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT count(*) FROM orders WHERE buyer_id = $1 AND status = 'pending_payment'`, buyerID).Scan(&n)
	return n, mapErr(err)
}
