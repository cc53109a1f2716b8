// Package auctions settles ended auctions: it picks the winner, creates the order and places
// the winner's RipLimit hold in one unit of work, then fans out notifications.
package auctions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/bids"
	"github.com/riplimit/backend/internal/ledger"
	"github.com/riplimit/backend/internal/metrics"
	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/notify"
	"github.com/riplimit/backend/internal/store"
)

var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrNotActive       = errors.New("auction is not active")
	ErrNotEnded        = errors.New("auction has not ended yet")
)

// errAlreadySettled aborts a unit of work that found the auction settled under its lock.
var errAlreadySettled = errors.New("auction already settled")

// Settleable is the precondition shared by the sweep and manual triggers.
func Settleable(a *models.Auction, now time.Time) error {
	if a.Status != models.AuctionStatusActive {
		return ErrNotActive
	}
	if a.EndTime.After(now) {
		return ErrNotEnded
	}
	return nil
}

type Outcome string

const (
	OutcomeSettled Outcome = "settled"
	OutcomeNoBids  Outcome = "no_bids"
	// OutcomeSkipped means the auction was already settled or otherwise not active.
	OutcomeSkipped Outcome = "skipped"
)

type Result struct {
	AuctionID uuid.UUID     `json:"auctionId"`
	Outcome   Outcome       `json:"outcome"`
	Order     *models.Order `json:"order,omitempty"`
	Held      int64         `json:"held"`
	BidCount  int           `json:"bidCount"`
}

// BidReader is the read side of the Bid Ledger used at settlement.
type BidReader interface {
	HighestBidAt(ctx context.Context, auctionID uuid.UUID, cutoff time.Time) (*models.Bid, error)
	Tally(ctx context.Context, auctionID uuid.UUID, cutoff time.Time) (bids.Tally, error)
}

// Notifier receives the settlement facts after commit.
type Notifier interface {
	Settlement(ctx context.Context, ev notify.SettlementEvent) error
}

// TxNotifier is a Notifier that can enqueue delivery inside the settlement unit of work, so
// the outcome and its notifications commit together. queued is false when the unit of work
// cannot carry the job; the engine then delivers through Settlement after commit.
type TxNotifier interface {
	Notifier
	SettlementTx(ctx context.Context, uow store.UnitOfWork, ev notify.SettlementEvent) (queued bool, err error)
}

type OrderNumbers interface {
	Next() string
}

type Engine struct {
	tx       store.Transactor
	auctions store.AuctionRepository
	bids     BidReader
	numbers  OrderNumbers
	notifier Notifier
	logger   *slog.Logger
	metrics  metrics.Recorder
	retry    store.RetryPolicy
	now      func() time.Time
}

func NewEngine(tx store.Transactor, auctions store.AuctionRepository, bids BidReader, numbers OrderNumbers, notifier Notifier, retry store.RetryPolicy, logger *slog.Logger, m metrics.Recorder) *Engine {
	if m == nil {
		m = metrics.NoOp()
	}
	return &Engine{
		tx: tx, auctions: auctions, bids: bids, numbers: numbers, notifier: notifier,
		logger: logger, metrics: m, retry: retry, now: time.Now,
	}
}

// Settle ends one auction. It is safe to call concurrently and repeatedly: an auction that is
// no longer active yields OutcomeSkipped, and only one caller ever creates the order and hold.
// ErrNotEnded is returned for an active auction whose end time has not passed.
func (e *Engine) Settle(ctx context.Context, auctionID uuid.UUID) (*Result, error) {
	res, err := e.settle(ctx, auctionID)
	switch {
	case err != nil:
		e.metrics.Settlement("error")
	default:
		e.metrics.Settlement(string(res.Outcome))
	}
	return res, err
}

func (e *Engine) settle(ctx context.Context, auctionID uuid.UUID) (*Result, error) {
	a, err := e.auctions.GetAuction(ctx, auctionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	skipped := &Result{AuctionID: auctionID, Outcome: OutcomeSkipped}
	switch err := Settleable(a, e.now()); {
	case errors.Is(err, ErrNotActive):
		return skipped, nil
	case err != nil:
		return nil, err
	}

	top, err := e.bids.HighestBidAt(ctx, auctionID, a.EndTime)
	if err != nil {
		return nil, fmt.Errorf("highest bid: %w", err)
	}
	tally, err := e.bids.Tally(ctx, auctionID, a.EndTime)
	if err != nil {
		return nil, fmt.Errorf("tally bids: %w", err)
	}

	var out *committed
	err = store.Retry(ctx, e.retry, func(ctx context.Context) error {
		return e.tx.WithinTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
			var err error
			out, err = e.commit(ctx, uow, a, top, tally)
			return err
		})
	})
	if errors.Is(err, errAlreadySettled) || errors.Is(err, store.ErrDuplicate) {
		return skipped, nil
	}
	if err != nil {
		return nil, err
	}

	res := out.res
	e.logger.Info("auction settled", "auction_id", auctionID, "outcome", res.Outcome, "bid_count", res.BidCount, "held", res.Held, "fanout_queued", out.queued)
	if !out.queued {
		e.deliver(ctx, out.event)
	}
	return res, nil
}

type committed struct {
	res    *Result
	event  notify.SettlementEvent
	queued bool
}

// commit writes the outcome and, when the notifier supports it, enqueues the fanout in the
// same unit of work.
func (e *Engine) commit(ctx context.Context, uow store.UnitOfWork, a *models.Auction, top *models.Bid, tally bids.Tally) (*committed, error) {
	res, err := e.writeOutcome(ctx, uow, a.ID, top, tally.BidCount)
	if err != nil {
		return nil, err
	}
	c := &committed{res: res, event: settlementEvent(a, res, tally.Bidders)}
	if tn, ok := e.notifier.(TxNotifier); ok {
		c.queued, err = tn.SettlementTx(ctx, uow, c.event)
		if err != nil {
			return nil, fmt.Errorf("enqueue settlement fanout: %w", err)
		}
	}
	return c, nil
}

// writeOutcome re-reads the auction under lock and writes the auction, order, account and
// ledger entry together.
func (e *Engine) writeOutcome(ctx context.Context, uow store.UnitOfWork, auctionID uuid.UUID, top *models.Bid, bidCount int) (*Result, error) {
	now := e.now().UTC()
	a, err := uow.GetAuctionForUpdate(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("lock auction: %w", err)
	}
	if a.Status != models.AuctionStatusActive {
		return nil, errAlreadySettled
	}

	if top == nil {
		if err := a.End(nil, nil, bidCount, now); err != nil {
			return nil, err
		}
		if err := uow.UpdateAuction(ctx, a); err != nil {
			return nil, fmt.Errorf("update auction: %w", err)
		}
		return &Result{AuctionID: auctionID, Outcome: OutcomeNoBids, BidCount: bidCount}, nil
	}

	winner, amount := top.UserID, top.Amount
	if err := a.End(&winner, &amount, bidCount, now); err != nil {
		return nil, err
	}
	if err := uow.UpdateAuction(ctx, a); err != nil {
		return nil, fmt.Errorf("update auction: %w", err)
	}

	hold, err := holdAmount(ctx, uow, winner, amount)
	if err != nil {
		return nil, err
	}
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: e.numbers.Next(),
		AuctionID:   a.ID,
		BuyerID:     winner,
		SellerID:    a.SellerID,
		Items: []models.OrderItem{{
			ProductID: a.ProductID,
			Name:      a.Title,
			Image:     a.Image(),
			Quantity:  1,
			Price:     amount,
		}},
		Subtotal:      amount,
		TotalAmount:   amount,
		Status:        models.OrderStatusPendingPayment,
		PaymentStatus: models.PaymentStatusPending,
		Payment:       models.Payment{Method: models.OrderPaymentMethodAuction},
		RipLimitHeld:  hold,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uow.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if hold > 0 {
		orderID, aID := order.ID, a.ID
		_, err = ledger.Apply(ctx, uow, ledger.Entry{
			UserID:   winner,
			Type:     models.TransactionHold,
			Amount:   hold,
			Metadata: models.TransactionMetadata{OrderID: &orderID, AuctionID: &aID, CorrelationID: order.OrderNumber},
		}, now)
	} else {
		err = ledger.SetUnpaid(ctx, uow, winner, true, now)
	}
	if err != nil {
		return nil, fmt.Errorf("hold winner balance: %w", err)
	}
	return &Result{AuctionID: a.ID, Outcome: OutcomeSettled, Order: order, Held: hold, BidCount: bidCount}, nil
}

// holdAmount caps the hold at what the winner has available.
func holdAmount(ctx context.Context, uow store.UnitOfWork, userID uuid.UUID, amount int64) (int64, error) {
	acc, err := uow.GetAccountForUpdate(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lock winner account: %w", err)
	}
	return min(amount, acc.AvailableBalance), nil
}

func settlementEvent(a *models.Auction, res *Result, bidders []bids.BidderSummary) notify.SettlementEvent {
	ev := notify.SettlementEvent{AuctionID: a.ID, Title: a.Title, SellerID: a.SellerID}
	for _, b := range bidders {
		ev.Bidders = append(ev.Bidders, notify.Bidder{UserID: b.UserID, BestBid: b.BestBid})
	}
	if res.Order != nil {
		ev.Winner = &notify.Winner{
			UserID:      res.Order.BuyerID,
			Amount:      res.Order.TotalAmount,
			OrderID:     res.Order.ID,
			OrderNumber: res.Order.OrderNumber,
		}
	}
	return ev
}

func (e *Engine) deliver(ctx context.Context, ev notify.SettlementEvent) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Settlement(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Warn("settlement fanout failed", "auction_id", ev.AuctionID, "error", err)
	}
}
