// Package notify turns settlement and refund outcomes into per-recipient notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/riplimit/backend/internal/metrics"
	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/store"
)

type Fanout struct {
	repo    store.NotificationRepository
	sinks   []Sink
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

func NewFanout(repo store.NotificationRepository, logger *slog.Logger, m metrics.Recorder, sinks ...Sink) *Fanout {
	if m == nil {
		m = metrics.NoOp()
	}
	return &Fanout{repo: repo, sinks: sinks, logger: logger, metrics: m, now: time.Now}
}

// Settlement stores the settlement notifications. Recipients are independent: a failure for
// one is collected and the rest are still written.
func (f *Fanout) Settlement(ctx context.Context, ev SettlementEvent) error {
	return f.deliverAll(ctx, SettlementNotifications(ev))
}

func (f *Fanout) Refund(ctx context.Context, r *models.RefundRequest) error {
	return f.deliverAll(ctx, []*models.Notification{RefundNotification(r)})
}

func (f *Fanout) deliverAll(ctx context.Context, ns []*models.Notification) error {
	var errs error
	for _, n := range ns {
		n.ID = uuid.New()
		n.CreatedAt = f.now().UTC()
		created, err := f.repo.InsertNotification(ctx, n)
		if err != nil {
			f.metrics.Notification("store", "error")
			errs = multierr.Append(errs, fmt.Errorf("store %s notification for %s: %w", n.Type, n.UserID, err))
			continue
		}
		if !created {
			f.metrics.Notification("store", "duplicate")
			continue
		}
		f.metrics.Notification("store", "ok")
		f.forward(ctx, n)
	}
	return errs
}

// forward pushes a stored notification to the fire-and-forget sinks. Failures are logged only.
func (f *Fanout) forward(ctx context.Context, n *models.Notification) {
	for _, s := range f.sinks {
		if err := s.Deliver(ctx, n); err != nil {
			f.metrics.Notification(s.Name(), "error")
			f.logger.Warn("notification sink delivery failed", "sink", s.Name(), "user_id", n.UserID, "type", n.Type, "error", err)
			continue
		}
		f.metrics.Notification(s.Name(), "ok")
	}
}
