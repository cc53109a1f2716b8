// Package store defines the persistence contracts shared by every component: one repository
// per entity family plus the UnitOfWork that scopes multi-document atomic writes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a transient write conflict. The whole unit of work may be retried.
	ErrConflict = errors.New("write conflict")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate key")
)

// UnitOfWork is the transaction-scoped view of the store. Reads lock the document for the
// rest of the unit; writes become visible to other readers only on commit.
type UnitOfWork interface {
	GetAuctionForUpdate(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	UpdateAuction(ctx context.Context, a *models.Auction) error

	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, o *models.Order) error
	CountPendingOrders(ctx context.Context, buyerID uuid.UUID) (int, error)

	// GetAccountForUpdate returns ErrNotFound for users that were never credited.
	GetAccountForUpdate(ctx context.Context, userID uuid.UUID) (*models.CurrencyAccount, error)
	// EnsureAccount creates an empty account if missing and returns it locked.
	EnsureAccount(ctx context.Context, userID uuid.UUID) (*models.CurrencyAccount, error)
	UpdateAccount(ctx context.Context, a *models.CurrencyAccount) error
	AppendTransaction(ctx context.Context, t *models.CurrencyTransaction) error

	CreateRefund(ctx context.Context, r *models.RefundRequest) error
	CountRefundsSince(ctx context.Context, userID uuid.UUID, since time.Time, statuses []models.RefundStatus) (int, error)
}

// Transactor runs fn inside one unit of work: commit when fn returns nil, roll back otherwise.
// Conflicts surface as ErrConflict; callers that want retries wrap the call with Retry.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

type AuctionRepository interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	// ListDue returns active auctions whose end time is at or before now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Auction, error)
}

// BidPage is one page of bids plus the token for the next page ("" when exhausted).
type BidPage struct {
	Bids      []*models.Bid
	NextToken string
}

type BidRepository interface {
	InsertBid(ctx context.Context, b *models.Bid) error
	// HighestBid returns the top bid placed at or before cutoff, or nil when there is none.
	HighestBid(ctx context.Context, auctionID uuid.UUID, cutoff time.Time) (*models.Bid, error)
	ListBids(ctx context.Context, auctionID uuid.UUID, after *BidCursor, limit int) ([]*models.Bid, error)
}

// BidCursor is the keyset position of the last bid returned.
type BidCursor struct {
	Timestamp time.Time
	ID        uuid.UUID
}

type AccountRepository interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.CurrencyAccount, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.CurrencyTransaction, error)
	// SumTransactions returns the sum of signed amounts recorded for the user.
	SumTransactions(ctx context.Context, userID uuid.UUID) (int64, error)
}

type OrderRepository interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderByAuction(ctx context.Context, auctionID uuid.UUID) (*models.Order, error)
}

type RefundRepository interface {
	ListRefunds(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.RefundRequest, error)
}

type NotificationRepository interface {
	// InsertNotification stores n unless its dedupe key already exists; created reports which.
	InsertNotification(ctx context.Context, n *models.Notification) (created bool, err error)
	ListNotifications(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.Notification, error)
}
