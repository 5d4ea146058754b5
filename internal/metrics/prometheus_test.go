package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordDropped("invalid_bounds", 2)
	p.RecordDropped("invalid_bounds", 1)
	p.RecordOverflow(4)
	p.RecordFeedRefresh("main", true)
	p.RecordFeedRefresh("main", false)
	p.RecordLayout("", 0.001, 10, 3)

	require.InDelta(t, 3, testutil.ToFloat64(p.dropped.WithLabelValues("invalid_bounds")), 0)
	require.InDelta(t, 4, testutil.ToFloat64(p.overflowHidden), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.feedRefreshes.WithLabelValues("main", "error")), 0)

	count, err := testutil.GatherAndCount(reg, "test_layout_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestNop(t *testing.T) {
	var c Collector = NewNop()
	require.NotPanics(t, func() {
		c.RecordLayout("week", 1, 1, 1)
		c.RecordDropped("x", 1)
		c.RecordOverflow(1)
		c.RecordFeedRefresh("f", true)
	})
}
