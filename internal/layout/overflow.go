package layout

import "schoolcal/internal/model"

// Reduce caps a placed cluster at maxVisibleColumns. Events in lower
// columns become layout records; the rest are folded into one overflow
// marker that references the whole cluster. A cap <= 0 disables folding.
//
// len(visible) plus the marker's Count always equals len(placed).
func Reduce(groupID string, placed []Placed, maxVisibleColumns int) ([]model.Assignment, *model.Overflow) {
	visible := make([]model.Assignment, 0, len(placed))
	hidden := 0

	for _, p := range placed {
		if maxVisibleColumns > 0 && p.Column >= maxVisibleColumns {
			hidden++
			continue
		}
		visible = append(visible, model.Assignment{
			EventID:      p.Event.ID,
			Column:       p.Column,
			TotalColumns: p.TotalColumns,
			GroupID:      groupID,
		})
	}

	if hidden == 0 {
		return visible, nil
	}

	all := make([]model.Event, len(placed))
	for i, p := range placed {
		all[i] = p.Event
	}
	return visible, &model.Overflow{
		GroupID: groupID,
		Count:   hidden,
		Events:  all,
	}
}
