package web

import (
	"embed"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"time"

	appLog "schoolcal/internal/log"
	"schoolcal/internal/model"
)

// Visible hours of the preview grid.
const (
	gridFirstHour = 7
	gridLastHour  = 19
	gridHeightPx  = 900
)

//go:embed templates/calendar.html
var templateFS embed.FS

var calendarTmpl = template.Must(template.ParseFS(templateFS, "templates/calendar.html"))

type calendarPage struct {
	Title    string
	HeightPx int
	Hours    []hourMark
	Days     []dayColumn
}

type hourMark struct {
	Label  string
	TopPct float64
}

type dayColumn struct {
	Label  string
	Blocks []eventBlock
	More   []moreMarker
}

type eventBlock struct {
	Title     string
	Room      string
	Time      string
	Kind      string
	TopPct    float64
	HeightPct float64
	LeftPct   float64
	WidthPct  float64
}

type moreMarker struct {
	Count  int
	TopPct float64
}

// handleCalendar renders a static preview of a day or week layout.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := q.Get("view")
	if view == "" {
		view = "week"
	}
	if !SupportsCalendarView(view) {
		writeError(w, http.StatusBadRequest, "calendar preview supports day and week views")
		return
	}

	resp, err := s.viewLayout(view, q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page := buildCalendarPage(resp)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := calendarTmpl.Execute(w, page); err != nil {
		appLog.Error("calendar render failed", err, "view", view)
	}
}

func buildCalendarPage(resp layoutResponse) calendarPage {
	start, end := *resp.RangeStart, *resp.RangeEnd
	page := calendarPage{
		Title:    fmt.Sprintf("%s – %s", start.Format("Mon 2 Jan"), end.AddDate(0, 0, -1).Format("Mon 2 Jan 2006")),
		HeightPx: gridHeightPx,
	}
	if resp.View == "day" {
		page.Title = start.Format("Monday 2 January 2006")
	}

	for h := gridFirstHour; h <= gridLastHour; h++ {
		page.Hours = append(page.Hours, hourMark{
			Label:  fmt.Sprintf("%02d:00", h),
			TopPct: pct(float64(h-gridFirstHour), gridLastHour-gridFirstHour),
		})
	}

	byID := make(map[string]model.Event, len(resp.Events))
	for _, ev := range resp.Events {
		byID[ev.ID] = ev
	}

	dayIndex := make(map[string]int)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		dayIndex[d.Format(dateLayout)] = len(page.Days)
		page.Days = append(page.Days, dayColumn{Label: d.Format("Mon 2")})
	}

	for _, a := range resp.Assignments {
		ev, ok := byID[a.EventID]
		if !ok {
			continue
		}
		di, ok := dayIndex[ev.Start.Format(dateLayout)]
		if !ok {
			continue
		}
		shown := a.TotalColumns
		if resp.MaxVisibleColumns > 0 && shown > resp.MaxVisibleColumns {
			shown = resp.MaxVisibleColumns
		}
		width := 100 / float64(shown)
		top, height := verticalSpan(ev.Start, ev.End)

		page.Days[di].Blocks = append(page.Days[di].Blocks, eventBlock{
			Title:     ev.Title,
			Room:      ev.Meta.Room,
			Time:      ev.Start.Format("15:04"),
			Kind:      ev.Kind.String(),
			TopPct:    top,
			HeightPct: height,
			LeftPct:   round(float64(a.Column) * width),
			WidthPct:  round(width),
		})
	}

	for _, o := range resp.Overflows {
		if len(o.Events) == 0 {
			continue
		}
		first := o.Events[0]
		di, ok := dayIndex[first.Start.Format(dateLayout)]
		if !ok {
			continue
		}
		top, _ := verticalSpan(first.Start, first.End)
		page.Days[di].More = append(page.Days[di].More, moreMarker{Count: o.Count, TopPct: top})
	}

	return page
}

// verticalSpan maps an event onto the grid's hour range as percentages,
// clamped to the visible hours.
func verticalSpan(start, end time.Time) (float64, float64) {
	span := float64(gridLastHour - gridFirstHour)
	from := clamp(hoursOf(start)-gridFirstHour, 0, span)
	to := clamp(hoursOf(end)-gridFirstHour, 0, span)
	if end.Day() != start.Day() {
		to = span
	}
	return pct(from, span), pct(to-from, span)
}

func hoursOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func pct(v, total float64) float64 {
	return round(v / total * 100)
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
