package auctions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/riplimit/backend/internal/metrics"
	"github.com/riplimit/backend/internal/store"
)

type SweepConfig struct {
	PageSize      int
	Concurrency   int
	SettleTimeout time.Duration
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{PageSize: 100, Concurrency: 4, SettleTimeout: 30 * time.Second}
}

// Settler settles a single auction.
type Settler interface {
	Settle(ctx context.Context, auctionID uuid.UUID) (*Result, error)
}

type SweepReport struct {
	Scanned  int           `json:"scanned"`
	Settled  int           `json:"settled"`
	NoBids   int           `json:"noBids"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"durationNs"`
}

type Sweeper struct {
	auctions store.AuctionRepository
	settler  Settler
	cfg      SweepConfig
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

func NewSweeper(auctions store.AuctionRepository, settler Settler, cfg SweepConfig, logger *slog.Logger, m metrics.Recorder) *Sweeper {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultSweepConfig().PageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if m == nil {
		m = metrics.NoOp()
	}
	return &Sweeper{auctions: auctions, settler: settler, cfg: cfg, logger: logger, metrics: m, now: time.Now}
}

// Run settles one page of due auctions. Each auction is settled on its own; failures are
// collected into the returned error and never affect the others. Auctions beyond the page are
// left for the next run.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	due, err := s.auctions.ListDue(ctx, s.now().UTC(), s.cfg.PageSize)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list due auctions: %w", err)
	}

	var (
		mu     sync.Mutex
		report = SweepReport{Scanned: len(due)}
		errs   error
	)
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, a := range due {
		id := a.ID
		g.Go(func() error {
			res, err := s.settleOne(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrNotEnded):
				report.Skipped++
			case err != nil:
				report.Failed++
				errs = multierr.Append(errs, fmt.Errorf("auction %s: %w", id, err))
			case res.Outcome == OutcomeSettled:
				report.Settled++
			case res.Outcome == OutcomeNoBids:
				report.NoBids++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	s.metrics.SweepCompleted(report.Duration, report.Scanned, report.Failed)
	level := slog.LevelInfo
	if report.Failed > 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "auction sweep finished",
		"scanned", report.Scanned, "settled", report.Settled, "no_bids", report.NoBids,
		"skipped", report.Skipped, "failed", report.Failed, "duration", report.Duration)
	return report, errs
}

func (s *Sweeper) settleOne(ctx context.Context, id uuid.UUID) (*Result, error) {
	if s.cfg.SettleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SettleTimeout)
		defer cancel()
	}
	res, err := s.settler.Settle(ctx, id)
	if err != nil && !errors.Is(err, ErrNotEnded) {
		s.logger.Error("auction settlement failed", "auction_id", id, "error", err)
	}
	return res, err
}
