package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg)

	p.Settlement("settled")
	p.Settlement("settled")
	p.Settlement("no_bids")
	p.LedgerOp("hold", "ok")
	p.SweepCompleted(2*time.Second, 7, 1)
	p.TxRetry()

	assert.Equal(t, 2.0, testutil.ToFloat64(p.settlements.WithLabelValues("settled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.settlements.WithLabelValues("no_bids")))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.sweepScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sweepFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.txRetries))

	n, err := testutil.GatherAndCount(reg, "riplimit_ledger_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
