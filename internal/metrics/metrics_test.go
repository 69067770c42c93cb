package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	t.Parallel()
	m := New()

	m.ObserveRecord("product-import", "succeeded")
	m.ObserveRecord("product-import", "succeeded")
	m.ObserveRecord("product-import", "failed")
	m.ObserveRun("product-import", "COMPLETED")
	m.ObserveRollback(3)
	m.ObserveRollback(0)
	m.ObserveStep("product-import", "LOAD", 250*time.Millisecond)

	require.Equal(t, float64(2),
		testutil.ToFloat64(m.recordsProcessed.WithLabelValues("product-import", "succeeded")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(m.recordsProcessed.WithLabelValues("product-import", "failed")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(m.runsTotal.WithLabelValues("product-import", "COMPLETED")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.rollbackOps))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 4)
}

func TestMetricsNilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveRecord("p", "succeeded")
		m.ObserveRun("p", "FAILED")
		m.ObserveRollback(1)
		m.ObserveStep("p", "EXTRACT", time.Second)
	})
	require.Nil(t, m.Registry())
}
