package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/riplimit/backend/internal/auctions"
	"github.com/riplimit/backend/internal/notify"
	"github.com/riplimit/backend/internal/store"
)

const fanoutMaxAttempts = 10

// FanoutArgs delivers the notifications of one settled auction. At most one job per
// auction is queued at a time.
type FanoutArgs struct {
	AuctionID uuid.UUID              `json:"auction_id" river:"unique"`
	Event     notify.SettlementEvent `json:"event"`
}

func (FanoutArgs) Kind() string { return "settlement_fanout" }

type SettlementFanout interface {
	Settlement(ctx context.Context, ev notify.SettlementEvent) error
}

// FanoutWorker writes notifications for a settlement. Notification writes are keyed by a
// dedupe key, so a retried job never produces a second copy.
type FanoutWorker struct {
	river.WorkerDefaults[FanoutArgs]
	fanout SettlementFanout
}

func NewFanoutWorker(f SettlementFanout) *FanoutWorker {
	return &FanoutWorker{fanout: f}
}

func (w *FanoutWorker) Work(ctx context.Context, job *river.Job[FanoutArgs]) error {
	if err := w.fanout.Settlement(ctx, job.Args.Event); err != nil {
		return fmt.Errorf("fanout auction %s (attempt %d): %w", job.Args.AuctionID, job.Attempt, err)
	}
	return nil
}

// Inserter is the subset of *river.Client used to enqueue jobs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
	InsertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// TxCarrier is a unit of work backed by a pgx transaction.
type TxCarrier interface {
	PgxTx() pgx.Tx
}

// EnqueuingNotifier hands settlement fanout to the job queue. Inside a Postgres unit of work
// the job commits with the settlement. Until an Inserter is bound, or when a post-commit
// insert fails, it delivers inline instead.
type EnqueuingNotifier struct {
	mu       sync.RWMutex
	inserter Inserter
	inline   SettlementFanout
	logger   *slog.Logger
}

var _ auctions.TxNotifier = (*EnqueuingNotifier)(nil)

func NewEnqueuingNotifier(inline SettlementFanout, logger *slog.Logger) *EnqueuingNotifier {
	return &EnqueuingNotifier{inline: inline, logger: logger}
}

// Bind sets the queue client. The client is built after the workers it runs, which in turn
// need this notifier, so it is attached late.
func (n *EnqueuingNotifier) Bind(ins Inserter) {
	n.mu.Lock()
	n.inserter = ins
	n.mu.Unlock()
}

func (n *EnqueuingNotifier) bound() Inserter {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.inserter
}

func fanoutJob(ev notify.SettlementEvent) (FanoutArgs, *river.InsertOpts) {
	return FanoutArgs{AuctionID: ev.AuctionID, Event: ev}, &river.InsertOpts{
		MaxAttempts: fanoutMaxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// SettlementTx inserts the fanout job in the settlement's own transaction. It reports
// queued=false, without error, when no queue is bound or uow is not a pgx transaction.
func (n *EnqueuingNotifier) SettlementTx(ctx context.Context, uow store.UnitOfWork, ev notify.SettlementEvent) (bool, error) {
	ins := n.bound()
	carrier, ok := uow.(TxCarrier)
	if ins == nil || !ok {
		return false, nil
	}
	args, opts := fanoutJob(ev)
	res, err := ins.InsertTx(ctx, carrier.PgxTx(), args, opts)
	if err != nil {
		return false, err
	}
	if res.UniqueSkippedAsDuplicate {
		n.logger.Debug("settlement fanout already queued", "auction_id", ev.AuctionID)
	}
	return true, nil
}

func (n *EnqueuingNotifier) Settlement(ctx context.Context, ev notify.SettlementEvent) error {
	ins := n.bound()
	if ins == nil {
		return n.inline.Settlement(ctx, ev)
	}

	args, opts := fanoutJob(ev)
	res, err := ins.Insert(ctx, args, opts)
	if err != nil {
		n.logger.Warn("enqueue settlement fanout failed, delivering inline", "auction_id", ev.AuctionID, "error", err)
		return n.inline.Settlement(ctx, ev)
	}
	if res.UniqueSkippedAsDuplicate {
		n.logger.Debug("settlement fanout already queued", "auction_id", ev.AuctionID)
	}
	return nil
}
