package web

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// viewWindow returns the visible [start, end) range of a view containing
// date, in date's location.
func viewWindow(view string, date time.Time, weekStart string) (time.Time, time.Time, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	switch view {
	case "day":
		return day, day.AddDate(0, 0, 1), nil
	case "week":
		first := time.Monday
		if weekStart == "sunday" {
			first = time.Sunday
		}
		back := (int(day.Weekday()) - int(first) + 7) % 7
		start := day.AddDate(0, 0, -back)
		return start, start.AddDate(0, 0, 7), nil
	case "month":
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown view %q", view)
	}
}

// parseDate parses YYYY-MM-DD in loc; the empty string yields today.
func parseDate(s string, loc *time.Location, now time.Time) (time.Time, error) {
	if s == "" {
		return now.In(loc), nil
	}
	return time.ParseInLocation(dateLayout, s, loc)
}

// parseInstant accepts RFC 3339 or a bare date. Unparsable input yields
// the zero time.
func parseInstant(s string, loc *time.Location) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc)
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t
	}
	return time.Time{}
}
