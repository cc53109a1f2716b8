// Package metrics exposes the service's Prometheus collectors behind a small Recorder interface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives operational events. Implementations must be safe for concurrent use.
type Recorder interface {
	LedgerOp(op, outcome string)
	Settlement(outcome string)
	SweepCompleted(d time.Duration, scanned, failed int)
	Refund(outcome string)
	Notification(sink, outcome string)
	TxRetry()
}

type Prometheus struct {
	ledgerOps     *prometheus.CounterVec
	settlements   *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepScanned  prometheus.Counter
	sweepFailed   prometheus.Counter
	refunds       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	txRetries     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riplimit",
			Name:      "ledger_operations_total",
			Help:      "Currency account mutations by type and outcome.",
		}, []string{"op", "outcome"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riplimit",
			Name:      "settlements_total",
			Help:      "Auction settlement attempts by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riplimit",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of auction sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		sweepScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riplimit",
			Name:      "sweep_auctions_scanned_total",
			Help:      "Due auctions picked up by sweeps.",
		}),
		sweepFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riplimit",
			Name:      "sweep_auctions_failed_total",
			Help:      "Auctions whose settlement failed during a sweep.",
		}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riplimit",
			Name:      "refund_requests_total",
			Help:      "Refund requests by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riplimit",
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riplimit",
			Name:      "transaction_retries_total",
			Help:      "Units of work re-run after a write conflict.",
		}),
	}
	reg.MustRegister(p.ledgerOps, p.settlements, p.sweepDuration, p.sweepScanned, p.sweepFailed, p.refunds, p.notifications, p.txRetries)
	return p
}

var _ Recorder = (*Prometheus)(nil)

func (p *Prometheus) LedgerOp(op, outcome string) { p.ledgerOps.WithLabelValues(op, outcome).Inc() }

func (p *Prometheus) Settlement(outcome string) { p.settlements.WithLabelValues(outcome).Inc() }

func (p *Prometheus) SweepCompleted(d time.Duration, scanned, failed int) {
	p.sweepDuration.Observe(d.Seconds())
	p.sweepScanned.Add(float64(scanned))
	p.sweepFailed.Add(float64(failed))
}

func (p *Prometheus) Refund(outcome string) { p.refunds.WithLabelValues(outcome).Inc() }

func (p *Prometheus) Notification(sink, outcome string) {
	p.notifications.WithLabelValues(sink, outcome).Inc()
}

func (p *Prometheus) TxRetry() { p.txRetries.Inc() }

type noop struct{}

// NoOp returns a Recorder that drops everything.
func NoOp() Recorder { return noop{} }

func (noop) LedgerOp(string, string)                {}
func (noop) Settlement(string)                      {}
func (noop) SweepCompleted(time.Duration, int, int) {}
func (noop) Refund(string)                          {}
func (noop) Notification(string, string)            {}
func (noop) TxRetry()                               {}
