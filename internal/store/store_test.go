package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"schoolcal/internal/ics"
)

const feedBody = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//schoolcal//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:a\r\n" +
	"DTSTAMP:20260901T000000Z\r\n" +
	"DTSTART:20260907T080000Z\r\n" +
	"DTEND:20260907T090000Z\r\n" +
	"SUMMARY:History\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type stubFetcher struct {
	results []ics.FetchResult
	errs    []error
}

func (s stubFetcher) FetchAll(context.Context, []ics.Source) ([]ics.FetchResult, []error) {
	return s.results, s.errs
}

func TestStore_Refresh(t *testing.T) {
	sources := []ics.Source{{ID: "one", URL: "http://one"}, {ID: "two", URL: "http://two"}}

	t.Run("partial failure keeps good feeds", func(t *testing.T) {
		f := stubFetcher{
			results: []ics.FetchResult{{Source: sources[0], Body: []byte(feedBody)}},
			errs:    []error{errors.New("feed two: boom")},
		}
		s := New(f, sources, time.UTC, nil)

		require.NoError(t, s.Refresh(context.Background()))
		snap := s.Snapshot()
		require.Len(t, snap.Events, 1)
		require.Equal(t, "one:a", snap.Events[0].ID)
		require.Equal(t, []string{"feed two: boom"}, snap.Errors)
		require.False(t, snap.UpdatedAt.IsZero())
	})

	t.Run("total failure keeps the previous snapshot", func(t *testing.T) {
		s := New(stubFetcher{errs: []error{errors.New("x"), errors.New("y")}}, sources, time.UTC, nil)
		s.Set(nil)
		before := s.Snapshot()

		require.Error(t, s.Refresh(context.Background()))
		require.Equal(t, before, s.Snapshot())
	})

	t.Run("no sources yields an empty snapshot", func(t *testing.T) {
		s := New(stubFetcher{}, nil, time.UTC, nil)
		require.NoError(t, s.Refresh(context.Background()))
		require.Empty(t, s.Snapshot().Events)
	})
}
