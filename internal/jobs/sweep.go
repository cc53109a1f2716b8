package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"

	"github.com/riplimit/backend/internal/auctions"
)

// SweepArgs triggers one settlement sweep. It carries no payload; the sweep reads due
// auctions itself.
type SweepArgs struct{}

func (SweepArgs) Kind() string { return "sweep_auctions" }

type SweepRunner interface {
	Run(ctx context.Context) (auctions.SweepReport, error)
}

type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	sweeper SweepRunner
	timeout time.Duration
}

func NewSweepWorker(sweeper SweepRunner, timeout time.Duration) *SweepWorker {
	return &SweepWorker{sweeper: sweeper, timeout: timeout}
}

func (w *SweepWorker) Timeout(*river.Job[SweepArgs]) time.Duration { return w.timeout }

// Work runs the sweep. Failures of individual auctions are left for the next tick, so
// the job only errors when nothing could be scanned at all.
func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepArgs]) error {
	report, err := w.sweeper.Run(ctx)
	if err != nil && report.Scanned == 0 {
		return fmt.Errorf("sweep: %w", err)
	}
	return nil
}

// PeriodicSweep schedules SweepArgs on a standard cron expression (CRON_TZ prefix allowed).
// Sweeps are never retried; the next tick picks up whatever is still due.
func PeriodicSweep(schedule string) (*river.PeriodicJob, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	return river.NewPeriodicJob(
		sched,
		func() (river.JobArgs, *river.InsertOpts) {
			return SweepArgs{}, &river.InsertOpts{MaxAttempts: 1}
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	), nil
}

// NewLocalScheduler runs the sweep on schedule without a job queue. It is used when the
// service runs on the in-memory store and River is unavailable. Overlapping ticks are
// skipped.
func NewLocalScheduler(schedule string, sweeper SweepRunner, timeout time.Duration, logger *slog.Logger) (*cron.Cron, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := sweeper.Run(ctx); err != nil {
			logger.Warn("scheduled sweep finished with errors", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	return c, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
