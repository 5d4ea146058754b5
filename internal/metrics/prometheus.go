package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector backed by Prometheus.
type PrometheusCollector struct {
	layoutDuration *prometheus.HistogramVec
	layoutEvents   prometheus.Histogram
	layoutClusters prometheus.Histogram
	dropped        *prometheus.CounterVec
	overflowHidden prometheus.Counter
	feedRefreshes  *prometheus.CounterVec
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates the collector and registers it with reg.
//
// Parameters:
//   - reg: registerer to use (prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace (defaults to "schoolcal" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "schoolcal"
	}

	p := &PrometheusCollector{
		layoutDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "duration_seconds",
			Help:      "Time spent computing a calendar layout by view.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"view"}),
		layoutEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "events",
			Help:      "Number of event instances laid out per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		layoutClusters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "clusters",
			Help:      "Number of overlap clusters per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "dropped_events_total",
			Help:      "Events removed before clustering by reason.",
		}, []string{"reason"}),
		overflowHidden: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "overflow_events_total",
			Help:      "Events folded into overflow markers.",
		}),
		feedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "refreshes_total",
			Help:      "Feed refresh attempts by feed and result.",
		}, []string{"feed", "result"}),
	}

	reg.MustRegister(
		p.layoutDuration,
		p.layoutEvents,
		p.layoutClusters,
		p.dropped,
		p.overflowHidden,
		p.feedRefreshes,
	)

	return p
}

func (p *PrometheusCollector) RecordLayout(view string, seconds float64, events, clusters int) {
	if view == "" {
		view = "custom"
	}
	p.layoutDuration.WithLabelValues(view).Observe(seconds)
	p.layoutEvents.Observe(float64(events))
	p.layoutClusters.Observe(float64(clusters))
}

func (p *PrometheusCollector) RecordDropped(reason string, n int) {
	p.dropped.WithLabelValues(reason).Add(float64(n))
}

func (p *PrometheusCollector) RecordOverflow(hidden int) {
	p.overflowHidden.Add(float64(hidden))
}

func (p *PrometheusCollector) RecordFeedRefresh(feed string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	p.feedRefreshes.WithLabelValues(feed, result).Inc()
}
