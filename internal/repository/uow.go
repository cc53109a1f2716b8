package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/store"
)

// unitOfWork binds the repos to one pgx transaction.
type unitOfWork struct {
	tx pgx.Tx
	db *DB
}

var _ store.UnitOfWork = (*unitOfWork)(nil)

// PgxTx exposes the underlying transaction so jobs can be inserted atomically with it.
func (u *unitOfWork) PgxTx() pgx.Tx { return u.tx }

func (u *unitOfWork) GetAuctionForUpdate(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return u.db.Auctions.GetForUpdateTx(ctx, u.tx, id)
}

func (u *unitOfWork) UpdateAuction(ctx context.Context, a *models.Auction) error {
	return u.db.Auctions.UpdateTx(ctx, u.tx, a)
}

func (u *unitOfWork) CreateOrder(ctx context.Context, o *models.Order) error {
	return u.db.Orders.CreateTx(ctx, u.tx, o)
}

func (u *unitOfWork) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return u.db.Orders.GetForUpdateTx(ctx, u.tx, id)
}

func (u *unitOfWork) UpdateOrder(ctx context.Context, o *models.Order) error {
	return u.db.Orders.UpdateTx(ctx, u.tx, o)
}

func (u *unitOfWork) CountPendingOrders(ctx context.Context, buyerID uuid.UUID) (int, error) {
	return u.db.Orders.CountPendingTx(ctx, u.tx, buyerID)
}

func (u *unitOfWork) GetAccountForUpdate(ctx context.Context, userID uuid.UUID) (*models.CurrencyAccount, error) {
	return u.db.Accounts.GetForUpdateTx(ctx, u.tx, userID)
}

func (u *unitOfWork) EnsureAccount(ctx context.Context, userID uuid.UUID) (*models.CurrencyAccount, error) {
	return u.db.Accounts.EnsureTx(ctx, u.tx, userID)
}

func (u *unitOfWork) UpdateAccount(ctx context.Context, a *models.CurrencyAccount) error {
	return u.db.Accounts.UpdateTx(ctx, u.tx, a)
}

func (u *unitOfWork) AppendTransaction(ctx context.Context, t *models.CurrencyTransaction) error {
	return u.db.Transactions.CreateTx(ctx, u.tx, t)
}

func (u *unitOfWork) CreateRefund(ctx context.Context, r *models.RefundRequest) error {
	return u.db.Refunds.CreateTx(ctx, u.tx, r)
}

func (u *unitOfWork) CountRefundsSince(ctx context.Context, userID uuid.UUID, since time.Time, statuses []models.RefundStatus) (int, error) {
	return u.db.Refunds.CountSinceTx(ctx, u.tx, userID, since, statuses)
}
