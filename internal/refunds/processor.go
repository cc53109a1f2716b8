// Package refunds turns RipLimit into an INR payout request, debiting the ledger atomically.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/riplimit/backend/internal/ledger"
	"github.com/riplimit/backend/internal/metrics"
	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/secure"
	"github.com/riplimit/backend/internal/store"
)

const MaxHistoryPage = 50

var (
	ErrBelowMinimum       = errors.New("refund amount below minimum")
	ErrValidation         = errors.New("invalid refund request")
	ErrUnpaidAuctionsHeld = errors.New("refunds are blocked while won auctions are unpaid")
)

type Config struct {
	MinAmount      int64
	INRPerRipLimit decimal.Decimal
	FeeINR         decimal.Decimal
	// Location decides where a calendar month starts for the free-refund allowance.
	Location *time.Location
	Retry    store.RetryPolicy
}

func DefaultConfig() Config {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*60*60+30*60)
	}
	return Config{
		MinAmount:      100,
		INRPerRipLimit: decimal.NewFromInt(1),
		FeeINR:         decimal.NewFromInt(10),
		Location:       loc,
		Retry:          store.DefaultRetryPolicy(),
	}
}

// Sealer protects bank account numbers at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
}

// Notifier is told about every committed refund request.
type Notifier interface {
	Refund(ctx context.Context, r *models.RefundRequest) error
}

type Processor struct {
	cfg      Config
	tx       store.Transactor
	refunds  store.RefundRepository
	sealer   Sealer
	notifier Notifier
	logger   *slog.Logger
	metrics  metrics.Recorder
	schema   *jsonschema.Schema
	now      func() time.Time
}

func NewProcessor(cfg Config, tx store.Transactor, refunds store.RefundRepository, sealer Sealer, notifier Notifier, logger *slog.Logger, m metrics.Recorder) (*Processor, error) {
	schema, err := compileRequestSchema()
	if err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if m == nil {
		m = metrics.NoOp()
	}
	return &Processor{
		cfg: cfg, tx: tx, refunds: refunds, sealer: sealer, notifier: notifier,
		logger: logger, metrics: m, schema: schema, now: time.Now,
	}, nil
}

// Quote computes the INR equivalent, fee and net payout for amount. A zero fee applies when
// firstThisMonth is true; the net never goes below zero.
func (p *Processor) Quote(amount int64, firstThisMonth bool) (inr, fee, net decimal.Decimal) {
	inr = decimal.NewFromInt(amount).Mul(p.cfg.INRPerRipLimit)
	fee = p.cfg.FeeINR
	if firstThisMonth {
		fee = decimal.Zero
	}
	net = inr.Sub(fee)
	if net.IsNegative() {
		net = decimal.Zero
	}
	return inr, fee, net
}

func (p *Processor) monthStart(now time.Time) time.Time {
	local := now.In(p.cfg.Location)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, p.cfg.Location)
}

// Request validates req, then creates the refund record and debits the ledger in one unit
// of work. Write conflicts re-run the whole unit of work.
func (p *Processor) Request(ctx context.Context, userID uuid.UUID, req Request) (*models.RefundRequest, error) {
	if err := p.validate(req); err != nil {
		p.metrics.Refund(outcome(err))
		return nil, err
	}

	var bank *models.BankDetails
	if req.Method == models.RefundMethodBank {
		sealed, err := p.sealer.Seal(req.BankDetails.AccountNumber)
		if err != nil {
			return nil, fmt.Errorf("seal bank account: %w", err)
		}
		bank = &models.BankDetails{
			AccountNumberSealed: sealed,
			AccountLast4:        secure.Last4(req.BankDetails.AccountNumber),
			IFSCCode:            req.BankDetails.IFSCCode,
			AccountHolderName:   req.BankDetails.AccountHolderName,
		}
	}

	var refund *models.RefundRequest
	err := store.Retry(ctx, p.cfg.Retry, func(ctx context.Context) error {
		return p.tx.WithinTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
			var err error
			refund, err = p.create(ctx, uow, userID, req, bank)
			return err
		})
	})
	p.metrics.Refund(outcome(err))
	if err != nil {
		return nil, err
	}

	p.logger.Info("refund requested", "refund_id", refund.ID, "user_id", userID, "amount", refund.RipLimitAmount, "net_inr", refund.NetAmount.String())
	if p.notifier != nil {
		if err := p.notifier.Refund(ctx, refund); err != nil {
			p.logger.Warn("refund notification failed", "refund_id", refund.ID, "error", err)
		}
	}
	return refund, nil
}

func (p *Processor) create(ctx context.Context, uow store.UnitOfWork, userID uuid.UUID, req Request, bank *models.BankDetails) (*models.RefundRequest, error) {
	now := p.now().UTC()
	acc, err := uow.GetAccountForUpdate(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", userID, ledger.ErrAccountNotFound)
	}
	if err != nil {
		return nil, err
	}
	if acc.HasUnpaidAuctions {
		return nil, ErrUnpaidAuctionsHeld
	}
	if acc.AvailableBalance < req.Amount {
		return nil, ledger.ErrInsufficientBalance
	}

	prior, err := uow.CountRefundsSince(ctx, userID, p.monthStart(now), models.FeeCountingRefundStatuses)
	if err != nil {
		return nil, fmt.Errorf("count refunds: %w", err)
	}
	inr, fee, net := p.Quote(req.Amount, prior == 0)

	r := &models.RefundRequest{
		ID:             uuid.New(),
		UserID:         userID,
		RipLimitAmount: req.Amount,
		INRAmount:      inr,
		FeeAmount:      fee,
		NetAmount:      net,
		Method:         req.Method,
		BankDetails:    bank,
		Status:         models.RefundStatusRequested,
		CreatedAt:      now,
	}
	if err := uow.CreateRefund(ctx, r); err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}
	refundID := r.ID
	_, err = ledger.Apply(ctx, uow, ledger.Entry{
		UserID:   userID,
		Type:     models.TransactionRefund,
		Amount:   req.Amount,
		Metadata: models.TransactionMetadata{RefundID: &refundID, CorrelationID: refundID.String()},
	}, now)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// History returns the user's refund requests, newest first.
func (p *Processor) History(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.RefundRequest, error) {
	if limit <= 0 || limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}
	return p.refunds.ListRefunds(ctx, userID, before, limit)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrUnpaidAuctionsHeld):
		return "unpaid_auctions_held"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrAccountNotFound):
		return "account_not_found"
	default:
		return "error"
	}
}
