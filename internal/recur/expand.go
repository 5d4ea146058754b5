// Package recur materializes weekly timetable templates into dated
// instances bounded by a plan date range.
package recur

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "schoolcal/internal/log"
	"schoolcal/internal/model"
)

const defaultMaxOccurrencesPerTemplate = 5000

// Plan is the date range a timetable is valid for. Both bounds are dates:
// only their calendar day matters, and End is inclusive.
type Plan struct {
	Start time.Time
	End   time.Time

	// MaxOccurrencesPerTemplate caps the expansion of a single template.
	// If zero, defaultMaxOccurrencesPerTemplate is used.
	MaxOccurrencesPerTemplate int
}

// Defined reports whether both plan bounds are present.
func (p Plan) Defined() bool {
	return !p.Start.IsZero() && !p.End.IsZero()
}

// Result wraps the expanded events and the templates that hit the cap.
type Result struct {
	Events          []model.Event
	TruncatedSeries []string
}

// Expand replaces every weekly template with its occurrences inside the
// plan. Non-recurring events pass through unchanged. If the plan is not
// defined the input is returned as is.
//
// A template without a Rule repeats every week on its start weekday. A
// template with a Rule follows that RRULE anchored at its own start, so
// UNTIL, COUNT, INTERVAL and BYDAY apply. ExDates remove occurrences in both
// cases, and overrides (events whose SeriesID names a template in the input)
// replace the occurrence starting at their RecurrenceID.
//
// An instance is kept only if it lies entirely within
// [midnight(plan.Start), midnight(plan.End)+24h), evaluated in the
// template's own location.
func Expand(events []model.Event, plan Plan) Result {
	if !plan.Defined() {
		return Result{Events: events}
	}
	if plan.MaxOccurrencesPerTemplate <= 0 {
		plan.MaxOccurrencesPerTemplate = defaultMaxOccurrencesPerTemplate
	}

	templates := make(map[string]bool)
	for _, ev := range events {
		if ev.IsTemplate() {
			templates[ev.ID] = true
		}
	}
	overrides := make(map[string][]model.Event)
	for _, ev := range events {
		if ev.IsOverride() && templates[ev.SeriesID] {
			overrides[ev.SeriesID] = append(overrides[ev.SeriesID], ev)
		}
	}

	out := make([]model.Event, 0, len(events))
	var truncated []string

	for _, ev := range events {
		if ev.IsOverride() && templates[ev.SeriesID] {
			continue
		}
		if !ev.IsTemplate() {
			out = append(out, ev)
			continue
		}

		instances, hitCap, err := expandTemplate(ev, overrides[ev.ID], plan)
		if err != nil {
			appLog.Error("recur: template expansion failed", err, "id", ev.ID, "rrule", ev.Rule)
			continue
		}
		if hitCap {
			truncated = append(truncated, ev.ID)
			appLog.Error("recur: truncated occurrences for template due to cap",
				errors.New("max occurrences reached"),
				"id", ev.ID,
				"cap", plan.MaxOccurrencesPerTemplate,
			)
		}
		out = append(out, instances...)
	}

	return Result{Events: out, TruncatedSeries: truncated}
}

func expandTemplate(tpl model.Event, overrides []model.Event, plan Plan) ([]model.Event, bool, error) {
	loc := tpl.Start.Location()
	windowStart := midnight(plan.Start.In(loc))
	windowEnd := midnight(plan.End.In(loc)).AddDate(0, 0, 1)
	if !windowStart.Before(windowEnd) {
		return nil, false, nil
	}

	set, err := occurrenceSet(tpl, windowStart, windowEnd)
	if err != nil {
		return nil, false, err
	}

	starts := set.Between(windowStart, windowEnd, true)
	hitCap := false
	if len(starts) > plan.MaxOccurrencesPerTemplate {
		starts = starts[:plan.MaxOccurrencesPerTemplate]
		hitCap = true
	}

	dur := tpl.End.Sub(tpl.Start)
	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		s = s.In(loc)
		inst := instance(tpl, s, s.Add(dur))
		if o, ok := findOverride(overrides, s); ok {
			inst = replacement(tpl, o, s)
		}
		if inst.Start.Before(windowStart) || inst.End.After(windowEnd) {
			continue
		}
		out = append(out, inst)
	}

	for _, o := range overrides {
		if !slices.ContainsFunc(starts, o.RecurrenceID.Equal) {
			appLog.Debug("recur: override matches no occurrence", "series", tpl.ID, "recurrence_id", o.RecurrenceID)
		}
	}
	return out, hitCap, nil
}

// occurrenceSet builds the recurrence set of a template, with exclusions.
func occurrenceSet(tpl model.Event, windowStart, windowEnd time.Time) (*rrule.Set, error) {
	var (
		r   *rrule.RRule
		err error
	)
	if tpl.Rule == "" {
		r, err = rrule.NewRRule(rrule.ROption{
			Freq:    rrule.WEEKLY,
			Dtstart: FirstOccurrence(tpl.Start, windowStart),
			Until:   windowEnd,
		})
	} else {
		var opt *rrule.ROption
		opt, err = rrule.StrToROptionInLocation(tpl.Rule, tpl.Start.Location())
		if err != nil {
			return nil, err
		}
		opt.Dtstart = tpl.Start
		r, err = rrule.NewRRule(*opt)
	}
	if err != nil {
		return nil, err
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range tpl.ExDates {
		set.ExDate(ex.In(tpl.Start.Location()))
	}
	return set, nil
}

// findOverride returns the override whose RecurrenceID equals start.
func findOverride(overrides []model.Event, start time.Time) (model.Event, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return model.Event{}, false
}

// replacement turns an override into the instance it stands in for. It keeps
// the id of the original slot so the instance stays addressable after a move.
func replacement(tpl, o model.Event, original time.Time) model.Event {
	loc := tpl.Start.Location()
	ev := o
	ev.ID = InstanceID(tpl.ID, original)
	ev.SeriesID = tpl.ID
	ev.Start = o.Start.In(loc)
	ev.End = o.End.In(loc)
	ev.RecurrenceID = original
	ev.IsRecurring = false
	ev.Recurrence = model.RecurrenceNone
	ev.Rule = ""
	ev.ExDates = nil
	ev.DayOfWeek = ev.Start.Weekday()
	return ev
}

// FirstOccurrence returns the first date on or after from that falls on the
// weekday of start, carrying start's time of day.
func FirstOccurrence(start, from time.Time) time.Time {
	loc := start.Location()
	day := midnight(from.In(loc))
	offset := (int(start.Weekday()) - int(day.Weekday()) + 7) % 7
	day = day.AddDate(0, 0, offset)
	return time.Date(day.Year(), day.Month(), day.Day(),
		start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), loc)
}

func instance(tpl model.Event, start, end time.Time) model.Event {
	ev := tpl
	ev.ID = InstanceID(tpl.ID, start)
	ev.SeriesID = tpl.ID
	ev.Start = start
	ev.End = end
	ev.IsRecurring = false
	ev.Recurrence = model.RecurrenceNone
	ev.Rule = ""
	ev.ExDates = nil
	ev.DayOfWeek = start.Weekday()
	return ev
}

// InstanceID derives the stable id of the occurrence of series on start's day.
func InstanceID(series string, start time.Time) string {
	return series + "@" + start.Format("20060102")
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
