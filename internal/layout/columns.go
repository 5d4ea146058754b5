package layout

import (
	"time"

	"schoolcal/internal/model"
)

// Placed is an event annotated with its column inside a cluster.
type Placed struct {
	Event        model.Event
	Column       int
	TotalColumns int
}

// lane is the running state of one column during assignment.
type lane struct {
	end    time.Time
	sealed bool
}

// AssignColumns lays out the events of one cluster using greedy interval
// partitioning in Compare order. A regular event takes the lowest column
// whose last event has ended by its start. Breaks and lunches always open a
// new column, even if an existing one is free, and that column is never
// handed to another event.
//
// The returned slice is freshly allocated; column state never outlives the
// call.
func AssignColumns(events []model.Event) ([]Placed, int) {
	sorted := Sort(events)
	placed := make([]Placed, len(sorted))
	var lanes []lane

	for i, ev := range sorted {
		col := -1
		if !ev.Kind.NonInstructional() {
			for c, l := range lanes {
				if !l.sealed && !l.end.After(ev.Start) {
					col = c
					break
				}
			}
		}
		if col < 0 {
			col = len(lanes)
			lanes = append(lanes, lane{end: ev.End, sealed: ev.Kind.NonInstructional()})
		} else {
			lanes[col].end = ev.End
		}
		placed[i] = Placed{Event: ev, Column: col}
	}

	total := len(lanes)
	for i := range placed {
		placed[i].TotalColumns = total
	}
	return placed, total
}
