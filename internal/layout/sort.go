package layout

import (
	"cmp"
	"slices"
	"strings"

	"schoolcal/internal/model"
)

// kindRank orders kinds for tie-breaking: breaks first, then lunch, then
// regular lessons.
func kindRank(k model.Kind) int {
	switch k {
	case model.KindBreak:
		return 0
	case model.KindLunch:
		return 1
	default:
		return 2
	}
}

// Compare is the total order used everywhere ties must be broken:
// start, kind rank, room name (missing rooms last), end, then id.
func Compare(a, b model.Event) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(kindRank(a.Kind), kindRank(b.Kind)); c != 0 {
		return c
	}
	if c := compareRoom(a.Meta.Room, b.Meta.Room); c != 0 {
		return c
	}
	if c := a.End.Compare(b.End); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func compareRoom(a, b string) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	default:
		return strings.Compare(a, b)
	}
}

// Sort returns a sorted copy of events; the input is not modified.
func Sort(events []model.Event) []model.Event {
	out := slices.Clone(events)
	slices.SortStableFunc(out, Compare)
	return out
}
