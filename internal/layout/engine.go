// Package layout computes calendar column layouts for timetable entries.
//
// The pipeline is: drop malformed events, expand weekly templates, drop
// duplicates by id, sort, cluster by transitive overlap, assign columns per
// cluster, and fold columns beyond the visible cap into overflow markers.
// Every call is independent and does not retain any state.
package layout

import (
	"time"

	appLog "schoolcal/internal/log"
	"schoolcal/internal/metrics"
	"schoolcal/internal/model"
	"schoolcal/internal/recur"
)

// Reasons reported for dropped events.
const (
	DropInvalidBounds = "invalid_bounds"
	DropDuplicateID   = "duplicate_id"
)

// Config is the per-call input besides the events themselves.
type Config struct {
	// PlanStart/PlanEnd bound recurrence expansion. If either is zero,
	// templates are not expanded.
	PlanStart time.Time
	PlanEnd   time.Time

	// WindowStart/WindowEnd is the visible range. If both are set, instances
	// that do not overlap it are discarded after expansion.
	WindowStart time.Time
	WindowEnd   time.Time

	// MaxVisibleColumns caps the columns rendered per cluster. <= 0 means
	// no cap.
	MaxVisibleColumns int

	// View labels metrics only.
	View string
}

// Dropped describes an event removed before clustering.
type Dropped struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// Result is the output of one engine run.
type Result struct {
	// Events are the laid out instances in cluster order, for renderers that
	// need more than the ids.
	Events      []model.Event      `json:"events"`
	Assignments []model.Assignment `json:"assignments"`
	Overflows   []model.Overflow   `json:"overflows"`
	Clusters    int                `json:"clusters"`
	Dropped     []Dropped          `json:"dropped,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(e *Engine) {
		if c != nil {
			e.metrics = c
		}
	}
}

// WithClock overrides the clock used to time runs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine runs the layout pipeline. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	metrics metrics.Collector
	now     func() time.Time
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		metrics: metrics.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute lays out events for one view. The input slice is never modified.
func (e *Engine) Compute(events []model.Event, cfg Config) Result {
	began := e.now()
	var res Result

	valid := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.Valid() {
			res.Dropped = append(res.Dropped, Dropped{EventID: ev.ID, Reason: DropInvalidBounds})
			appLog.Warn("layout: dropping event with invalid bounds",
				"id", ev.ID, "start", ev.Start, "end", ev.End)
			continue
		}
		valid = append(valid, ev)
	}

	expanded := recur.Expand(valid, recur.Plan{Start: cfg.PlanStart, End: cfg.PlanEnd}).Events
	expanded = clip(expanded, cfg.WindowStart, cfg.WindowEnd)

	unique, dups := dedupe(expanded)
	for _, id := range dups {
		res.Dropped = append(res.Dropped, Dropped{EventID: id, Reason: DropDuplicateID})
		appLog.Debug("layout: dropping duplicate event", "id", id)
	}

	clusters := Clusters(unique)
	res.Clusters = len(clusters)
	res.Events = make([]model.Event, 0, len(unique))
	res.Assignments = make([]model.Assignment, 0, len(unique))
	hidden := 0

	for _, c := range clusters {
		res.Events = append(res.Events, c.Events...)
		placed, _ := AssignColumns(c.Events)
		visible, overflow := Reduce(c.GroupID, placed, cfg.MaxVisibleColumns)
		res.Assignments = append(res.Assignments, visible...)
		if overflow != nil {
			res.Overflows = append(res.Overflows, *overflow)
			hidden += overflow.Count
		}
	}

	e.record(cfg.View, res, len(unique), hidden, e.now().Sub(began))
	return res
}

func (e *Engine) record(view string, res Result, events, hidden int, took time.Duration) {
	counts := make(map[string]int)
	for _, d := range res.Dropped {
		counts[d.Reason]++
	}
	for reason, n := range counts {
		e.metrics.RecordDropped(reason, n)
	}
	if hidden > 0 {
		e.metrics.RecordOverflow(hidden)
	}
	e.metrics.RecordLayout(view, took.Seconds(), events, res.Clusters)
}

// clip keeps events overlapping [start, end). A zero bound disables it.
func clip(events []model.Event, start, end time.Time) []model.Event {
	if start.IsZero() || end.IsZero() {
		return events
	}
	window := model.Event{Start: start, End: end}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Overlaps(window) {
			out = append(out, ev)
		}
	}
	return out
}

// dedupe keeps one event per id, the one that sorts first, so the survivor
// does not depend on input order.
func dedupe(events []model.Event) ([]model.Event, []string) {
	best := make(map[string]int, len(events))
	order := make([]string, 0, len(events))
	var dups []string

	for i, ev := range events {
		j, seen := best[ev.ID]
		if !seen {
			best[ev.ID] = i
			order = append(order, ev.ID)
			continue
		}
		dups = append(dups, ev.ID)
		if Compare(ev, events[j]) < 0 {
			best[ev.ID] = i
		}
	}

	out := make([]model.Event, 0, len(order))
	for _, id := range order {
		out = append(out, events[best[id]])
	}
	return out, dups
}
