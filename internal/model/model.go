package model

import "time"

// RecurrencePattern names how a template repeats. Only weekly templates are
// expanded; the empty pattern means a one-off event.
type RecurrencePattern string

const (
	RecurrenceNone   RecurrencePattern = ""
	RecurrenceWeekly RecurrencePattern = "weekly"
)

// Metadata holds the display names attached to a timetable entry. The layout
// engine only ever looks at Room, and only to break ties.
type Metadata struct {
	Room    string `json:"room,omitempty"`
	Teacher string `json:"teacher,omitempty"`
	Class   string `json:"class,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// Event is a single time-boxed timetable entry, or a recurrence template when
// IsRecurring is set.
type Event struct {
	// ID is an opaque identifier owned by the upstream data source.
	ID string `json:"id"`
	// SeriesID is the template ID an expanded instance was produced from.
	SeriesID string `json:"series_id,omitempty"`

	Title string `json:"title"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Kind Kind `json:"kind"`

	// Template-only fields.
	IsRecurring bool              `json:"is_recurring,omitempty"`
	Recurrence  RecurrencePattern `json:"recurrence,omitempty"`
	DayOfWeek   time.Weekday      `json:"day_of_week,omitempty"`
	// Rule is an RFC 5545 RRULE value (without the "RRULE:" prefix). When
	// set it replaces the plain weekly pattern and is anchored at Start.
	Rule string `json:"rrule,omitempty"`
	// ExDates are occurrence starts removed from the series.
	ExDates []time.Time `json:"exdates,omitempty"`

	// RecurrenceID marks a replacement for the occurrence of SeriesID that
	// originally started at this instant.
	RecurrenceID time.Time `json:"recurrence_id,omitzero"`

	Meta Metadata `json:"meta"`
}

// Valid reports whether the event has usable bounds (both set, start < end).
func (e Event) Valid() bool {
	if e.Start.IsZero() || e.End.IsZero() {
		return false
	}
	return e.Start.Before(e.End)
}

// IsTemplate reports whether the event should be expanded into weekly
// instances.
func (e Event) IsTemplate() bool {
	return e.IsRecurring && e.Recurrence == RecurrenceWeekly
}

// IsOverride reports whether the event replaces one occurrence of a series.
func (e Event) IsOverride() bool {
	return e.SeriesID != "" && !e.RecurrenceID.IsZero()
}

// Overlaps reports whether e and o share any instant. Intervals are
// half-open, so events that only touch at an endpoint do not overlap.
func (e Event) Overlaps(o Event) bool {
	return e.Start.Before(o.End) && e.End.After(o.Start)
}

// Assignment is the layout record handed to the renderer.
type Assignment struct {
	EventID      string `json:"event_id"`
	Column       int    `json:"column"`
	TotalColumns int    `json:"total_columns"`
	GroupID      string `json:"group_id"`
}

// Overflow replaces the events of a cluster that did not fit into the
// visible columns. Events holds the whole cluster for an agenda popover.
type Overflow struct {
	GroupID string  `json:"group_id"`
	Count   int     `json:"count"`
	Events  []Event `json:"events"`
}
