// Package orders applies payment outcomes to orders created by auction settlement.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/ledger"
	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/store"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrInvalidOutcome = errors.New("payment status must be captured or failed")
)

type PaymentStatus string

const (
	PaymentCaptured PaymentStatus = "captured"
	PaymentFailed   PaymentStatus = "failed"
)

// PaymentOutcome is what the payment gateway reported for an order.
type PaymentOutcome struct {
	Status    PaymentStatus `json:"status"`
	Reference string        `json:"reference"`
}

type Service struct {
	tx     store.Transactor
	orders store.OrderRepository
	logger *slog.Logger
	retry  store.RetryPolicy
	now    func() time.Time
}

func NewService(tx store.Transactor, orders store.OrderRepository, retry store.RetryPolicy, logger *slog.Logger) *Service {
	return &Service{tx: tx, orders: orders, logger: logger, retry: retry, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, err := s.orders.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// RecordPayment settles a pending order: captured confirms it, failed cancels it. Either way
// the RipLimit hold placed at settlement is released and the buyer's unpaid flag is
// recomputed from their remaining pending orders. Orders that are no longer pending are
// returned unchanged.
func (s *Service) RecordPayment(ctx context.Context, orderID uuid.UUID, outcome PaymentOutcome) (*models.Order, error) {
	if outcome.Status != PaymentCaptured && outcome.Status != PaymentFailed {
		return nil, ErrInvalidOutcome
	}
	var order *models.Order
	changed := false
	err := store.Retry(ctx, s.retry, func(ctx context.Context) error {
		changed = false
		return s.tx.WithinTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
			var err error
			order, changed, err = s.apply(ctx, uow, orderID, outcome)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("order payment recorded", "order_id", order.ID, "status", order.Status, "released", order.RipLimitHeld)
	}
	return order, nil
}

func (s *Service) apply(ctx context.Context, uow store.UnitOfWork, orderID uuid.UUID, outcome PaymentOutcome) (*models.Order, bool, error) {
	now := s.now().UTC()
	o, err := uow.GetOrderForUpdate(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, ErrOrderNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if o.Status != models.OrderStatusPendingPayment {
		return o, false, nil
	}

	switch outcome.Status {
	case PaymentCaptured:
		o.Status = models.OrderStatusConfirmed
		o.PaymentStatus = models.PaymentStatusPaid
		o.Payment.PaidAt = &now
	case PaymentFailed:
		o.Status = models.OrderStatusCancelled
		o.PaymentStatus = models.PaymentStatusFailed
	}
	o.Payment.Reference = outcome.Reference
	o.UpdatedAt = now
	if err := uow.UpdateOrder(ctx, o); err != nil {
		return nil, false, fmt.Errorf("update order: %w", err)
	}

	if o.RipLimitHeld > 0 {
		orderRef := o.ID
		_, err := ledger.Apply(ctx, uow, ledger.Entry{
			UserID:   o.BuyerID,
			Type:     models.TransactionRelease,
			Amount:   o.RipLimitHeld,
			Metadata: models.TransactionMetadata{OrderID: &orderRef, AuctionID: &o.AuctionID, CorrelationID: o.OrderNumber},
		}, now)
		if err != nil {
			return nil, false, fmt.Errorf("release hold: %w", err)
		}
	}

	pending, err := uow.CountPendingOrders(ctx, o.BuyerID)
	if err != nil {
		return nil, false, fmt.Errorf("count pending orders: %w", err)
	}
	if err := ledger.SetUnpaid(ctx, uow, o.BuyerID, pending > 0, now); err != nil {
		return nil, false, fmt.Errorf("update unpaid flag: %w", err)
	}
	return o, true, nil
}
