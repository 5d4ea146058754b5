// Package store keeps the most recent parsed snapshot of all timetable
// feeds so HTTP handlers never wait on the network.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"schoolcal/internal/ics"
	appLog "schoolcal/internal/log"
	"schoolcal/internal/metrics"
	"schoolcal/internal/model"
)

// Fetcher is the subset of ics.Fetcher the store needs.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Snapshot is an immutable view of the feeds at one point in time.
type Snapshot struct {
	Events    []model.Event
	UpdatedAt time.Time
	Errors    []string
}

// Store holds the latest snapshot. It is safe for concurrent use.
type Store struct {
	fetcher Fetcher
	sources []ics.Source
	loc     *time.Location
	metrics metrics.Collector

	refreshMu sync.Mutex

	mu   sync.RWMutex
	snap Snapshot
}

// New creates a Store. loc is the display timezone applied while parsing.
func New(fetcher Fetcher, sources []ics.Source, loc *time.Location, m metrics.Collector) *Store {
	if m == nil {
		m = metrics.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Store{fetcher: fetcher, sources: sources, loc: loc, metrics: m}
}

// Snapshot returns the current snapshot. Callers must not modify Events.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Set replaces the snapshot with the given events.
func (s *Store) Set(events []model.Event) {
	s.mu.Lock()
	s.snap = Snapshot{Events: events, UpdatedAt: time.Now()}
	s.mu.Unlock()
}

// Refresh fetches and parses every feed and swaps in a new snapshot. Feeds
// that fail are skipped; if every feed fails the previous snapshot is kept
// and an error is returned. Concurrent refreshes are serialized.
func (s *Store) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if len(s.sources) == 0 {
		s.Set(nil)
		return nil
	}

	results, fetchErrs := s.fetcher.FetchAll(ctx, s.sources)

	failed := make(map[string]bool, len(s.sources))
	for _, src := range s.sources {
		failed[src.ID] = true
	}

	var events []model.Event
	msgs := make([]string, 0, len(fetchErrs))
	for _, err := range fetchErrs {
		msgs = append(msgs, err.Error())
	}

	for _, res := range results {
		parsed, err := ics.ParseICS(res.Source, res.Body, s.loc)
		if err != nil {
			msgs = append(msgs, err.Error())
			continue
		}
		failed[res.Source.ID] = false
		events = append(events, parsed...)
	}

	ok := 0
	for id, f := range failed {
		s.metrics.RecordFeedRefresh(id, !f)
		if !f {
			ok++
		}
	}
	if ok == 0 {
		return errors.New("store: every feed failed to refresh")
	}

	s.mu.Lock()
	s.snap = Snapshot{Events: events, UpdatedAt: time.Now(), Errors: msgs}
	s.mu.Unlock()

	appLog.Info("store refreshed", "feeds_ok", ok, "feeds", len(s.sources), "events", len(events))
	return nil
}
