package metrics

// Collector records layout and feed metrics. Implementations must be safe
// for concurrent use since HTTP handlers compute layouts in parallel.
type Collector interface {
	// RecordLayout records one engine run for the given view label.
	RecordLayout(view string, seconds float64, events, clusters int)

	// RecordDropped records events removed before clustering.
	RecordDropped(reason string, n int)

	// RecordOverflow records events folded into an overflow marker.
	RecordOverflow(hidden int)

	// RecordFeedRefresh records the outcome of refreshing one feed.
	RecordFeedRefresh(feed string, ok bool)
}

// Nop discards every metric.
type Nop struct{}

var _ Collector = Nop{}

// NewNop returns a Collector that does nothing.
func NewNop() Nop { return Nop{} }

func (Nop) RecordLayout(string, float64, int, int) {}
func (Nop) RecordDropped(string, int)               {}
func (Nop) RecordOverflow(int)                      {}
func (Nop) RecordFeedRefresh(string, bool)          {}
