package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "schoolcal/internal/log"
	"schoolcal/internal/model"
	"schoolcal/internal/recur"
)

// Non-standard properties a timetable exporter may attach to a VEVENT.
const (
	propPeriodType ical.ComponentProperty = "X-PERIOD-TYPE"
	propTeacher    ical.ComponentProperty = "X-TEACHER"
	propClass      ical.ComponentProperty = "X-CLASS"
	propSubject    ical.ComponentProperty = "X-SUBJECT"

	propCategories   ical.ComponentProperty = "CATEGORIES"
	propRecurrenceID ical.ComponentProperty = "RECURRENCE-ID"
)

var (
	errMissingUID = errors.New("missing UID")
	errAllDay     = errors.New("all-day event")
)

// ParseICS parses one feed payload into timetable events in loc.
//
//   - Missing or unparsable DTSTART/DTEND leave the bound zero; the layout
//     engine drops such events and reports them.
//   - A weekly RRULE marks the event as a template; the rule and its EXDATEs
//     are kept for expansion. Other frequencies are logged and the event is
//     kept as a one-off.
//   - A VEVENT with RECURRENCE-ID becomes an override of the occurrence it
//     names, identified like the instance it replaces.
//   - All-day events are skipped.
func ParseICS(src Source, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]model.Event, 0)
	skipped := 0

	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp, loc)
		switch {
		case errors.Is(perr, errAllDay):
			appLog.Debug("ics vevent skipped", "id", src.ID, "reason", perr.Error())
			skipped++
			continue
		case perr != nil:
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			skipped++
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "event_count", len(events), "skipped", skipped)
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (model.Event, error) {
	var out model.Event

	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return out, errMissingUID
	}
	out.ID = src.qualify(uid)

	if isAllDay(ve) {
		return out, errAllDay
	}

	out.Title = propValue(ve, ical.ComponentPropertySummary)

	if start, err := ve.GetStartAt(); err == nil {
		out.Start = start.In(loc)
	}
	if end, err := ve.GetEndAt(); err == nil {
		out.End = end.In(loc)
	}

	periodType := propValue(ve, propPeriodType)
	if periodType == "" {
		periodType = firstCategory(ve)
	}
	out.Kind = model.ClassifyKind(periodType, out.Title)

	out.Meta = model.Metadata{
		Room:    propValue(ve, ical.ComponentPropertyLocation),
		Teacher: propValue(ve, propTeacher),
		Class:   propValue(ve, propClass),
		Subject: propValue(ve, propSubject),
	}
	if out.Meta.Subject == "" {
		out.Meta.Subject = out.Title
	}

	if prop := ve.GetProperty(propRecurrenceID); prop != nil {
		rid, err := propTime(prop, loc)
		if err != nil {
			return out, fmt.Errorf("uid %s: RECURRENCE-ID: %w", uid, err)
		}
		out.SeriesID = out.ID
		out.RecurrenceID = rid.In(loc)
		out.ID = recur.InstanceID(out.SeriesID, out.RecurrenceID)
		return out, nil
	}

	if raw := propValue(ve, ical.ComponentPropertyRrule); raw != "" {
		applyRecurrence(&out, raw)
	}
	if out.IsTemplate() {
		out.ExDates = exDates(ve, loc)
	}

	return out, nil
}

func applyRecurrence(ev *model.Event, raw string) {
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		appLog.Error("ics rrule parse failed; keeping single occurrence", err, "id", ev.ID, "rrule", raw)
		return
	}
	if opt.Freq != rrule.WEEKLY {
		appLog.Warn("ics unsupported rrule; keeping single occurrence", "id", ev.ID, "rrule", raw)
		return
	}
	ev.IsRecurring = true
	ev.Recurrence = model.RecurrenceWeekly
	ev.Rule = raw
	ev.DayOfWeek = ev.Start.Weekday()
}

// exDates collects every EXDATE value; a property may carry a list.
func exDates(ve *ical.VEvent, loc *time.Location) []time.Time {
	var out []time.Time
	for _, prop := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(prop.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseICSTime(part, paramLocation(prop, loc))
			if err != nil {
				appLog.Warn("ics exdate ignored", "value", part, "error", err.Error())
				continue
			}
			out = append(out, t.In(loc))
		}
	}
	return out
}

func propTime(prop *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseICSTime(prop.Value, paramLocation(prop, loc))
}

// paramLocation resolves a TZID parameter, falling back to loc for floating
// times and unknown zones.
func paramLocation(prop *ical.IANAProperty, loc *time.Location) *time.Location {
	if tzs, ok := prop.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(tzs[0]); err == nil {
			return l
		}
	}
	return loc
}

// parseICSTime parses DATE-TIME (UTC or local to loc) and DATE values.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	prop := ve.GetProperty(p)
	if prop == nil {
		return ""
	}
	return strings.TrimSpace(prop.Value)
}

func firstCategory(ve *ical.VEvent) string {
	raw := propValue(ve, propCategories)
	if raw == "" {
		return ""
	}
	first, _, _ := strings.Cut(raw, ",")
	return strings.TrimSpace(first)
}

// isAllDay reports whether DTSTART carries VALUE=DATE or a bare date.
func isAllDay(ve *ical.VEvent) bool {
	prop := ve.GetProperty(ical.ComponentPropertyDtStart)
	if prop == nil {
		return false
	}
	if vs, ok := prop.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(prop.Value, "T")
}
