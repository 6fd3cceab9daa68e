package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	require.NoError(t, m.Track("catalog:low_stock_scan").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("catalog:low_stock_scan").End(boom), boom)
	m.AddLowStock(3)
	m.AddLowStock(0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("catalog:low_stock_scan", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("catalog:low_stock_scan", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("catalog:low_stock_scan")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.lowStock))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddLowStock(1)
}
