package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/store"
)

// unitOfWork mutates a private copy of the state; the owning Store holds txMu throughout.
type unitOfWork struct {
	st *state
}

var _ store.UnitOfWork = (*unitOfWork)(nil)

func (u *unitOfWork) GetAuctionForUpdate(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	a, ok := u.st.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", id, store.ErrNotFound)
	}
	c := copyAuction(a)
	return &c, nil
}

func (u *unitOfWork) UpdateAuction(_ context.Context, a *models.Auction) error {
	if _, ok := u.st.auctions[a.ID]; !ok {
		return fmt.Errorf("auction %s: %w", a.ID, store.ErrNotFound)
	}
	u.st.auctions[a.ID] = copyAuction(*a)
	return nil
}

func (u *unitOfWork) CreateOrder(_ context.Context, o *models.Order) error {
	for _, existing := range u.st.orders {
		if existing.AuctionID == o.AuctionID || existing.OrderNumber == o.OrderNumber {
			return fmt.Errorf("order for auction %s: %w", o.AuctionID, store.ErrDuplicate)
		}
	}
	u.st.orders[o.ID] = copyOrder(*o)
	return nil
}

func (u *unitOfWork) GetOrderForUpdate(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := u.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	c := copyOrder(o)
	return &c, nil
}

func (u *unitOfWork) UpdateOrder(_ context.Context, o *models.Order) error {
	if _, ok := u.st.orders[o.ID]; !ok {
		return fmt.Errorf("order %s: %w", o.ID, store.ErrNotFound)
	}
	u.st.orders[o.ID] = copyOrder(*o)
	return nil
}

func (u *unitOfWork) CountPendingOrders(_ context.Context, buyerID uuid.UUID) (int, error) {
	n := 0
	for _, o := range u.st.orders {
		if o.BuyerID == buyerID && o.Status == models.OrderStatusPendingPayment {
			n++
		}
	}
	return n, nil
}

func (u *unitOfWork) GetAccountForUpdate(_ context.Context, userID uuid.UUID) (*models.CurrencyAccount, error) {
	a, ok := u.st.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", userID, store.ErrNotFound)
	}
	return &a, nil
}

func (u *unitOfWork) EnsureAccount(ctx context.Context, userID uuid.UUID) (*models.CurrencyAccount, error) {
	if _, ok := u.st.accounts[userID]; !ok {
		now := time.Now().UTC()
		u.st.accounts[userID] = models.CurrencyAccount{UserID: userID, CreatedAt: now, UpdatedAt: now}
	}
	return u.GetAccountForUpdate(ctx, userID)
}

func (u *unitOfWork) UpdateAccount(_ context.Context, a *models.CurrencyAccount) error {
	if _, ok := u.st.accounts[a.UserID]; !ok {
		return fmt.Errorf("account %s: %w", a.UserID, store.ErrNotFound)
	}
	if a.AvailableBalance < 0 || a.HeldBalance < 0 {
		return fmt.Errorf("account %s: negative balance", a.UserID)
	}
	u.st.accounts[a.UserID] = *a
	return nil
}

func (u *unitOfWork) AppendTransaction(_ context.Context, t *models.CurrencyTransaction) error {
	if _, ok := u.st.accounts[t.UserID]; !ok {
		return fmt.Errorf("account %s: %w", t.UserID, store.ErrNotFound)
	}
	u.st.transactions = append(u.st.transactions, *t)
	return nil
}

func (u *unitOfWork) CreateRefund(_ context.Context, r *models.RefundRequest) error {
	u.st.refunds = append(u.st.refunds, *r)
	return nil
}

func (u *unitOfWork) CountRefundsSince(_ context.Context, userID uuid.UUID, since time.Time, statuses []models.RefundStatus) (int, error) {
	n := 0
	for _, r := range u.st.refunds {
		if r.UserID != userID || r.CreatedAt.Before(since) {
			continue
		}
		for _, s := range statuses {
			if r.Status == s {
				n++
				break
			}
		}
	}
	return n, nil
}
