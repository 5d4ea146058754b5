package layout

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolcal/internal/model"
)

// randomEvents builds n events on one day with 5-minute granularity and a
// mix of kinds and rooms.
func randomEvents(rng *rand.Rand, n int) []model.Event {
	rooms := []string{"", "A01", "B12", "Lab"}
	out := make([]model.Event, n)
	for i := range out {
		startMin := 7*60 + rng.Intn(10*60/5)*5
		durMin := 5 + rng.Intn(24)*5
		kind := model.KindRegular
		switch rng.Intn(10) {
		case 0:
			kind = model.KindBreak
		case 1:
			kind = model.KindLunch
		}
		out[i] = model.Event{
			ID:    fmt.Sprintf("e%03d", i),
			Start: day.Add(time.Duration(startMin) * time.Minute),
			End:   day.Add(time.Duration(startMin+durMin) * time.Minute),
			Kind:  kind,
			Meta:  model.Metadata{Room: rooms[rng.Intn(len(rooms))]},
		}
	}
	return out
}

// naiveClusters merges groups pairwise until nothing changes.
func naiveClusters(events []model.Event) [][]string {
	groups := make([][]model.Event, len(events))
	for i, e := range events {
		groups[i] = []model.Event{e}
	}
	for merged := true; merged; {
		merged = false
	outer:
		for i := 0; i < len(groups); i++ {
			for j := i + 1; j < len(groups); j++ {
				if groupsOverlap(groups[i], groups[j]) {
					groups[i] = append(groups[i], groups[j]...)
					groups = append(groups[:j], groups[j+1:]...)
					merged = true
					break outer
				}
			}
		}
	}
	return canonical(groups)
}

func groupsOverlap(a, b []model.Event) bool {
	for _, x := range a {
		for _, y := range b {
			if x.Overlaps(y) {
				return true
			}
		}
	}
	return false
}

func canonical(groups [][]model.Event) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = ids(g)
		sort.Strings(out[i])
	}
	sort.Slice(out, func(i, j int) bool { return strings.Join(out[i], ",") < strings.Join(out[j], ",") })
	return out
}

func TestClusters_MatchesNaiveMerge(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		events := randomEvents(rng, 1+rng.Intn(40))

		got := make([][]model.Event, 0)
		for _, c := range Clusters(events) {
			got = append(got, c.Events)
		}
		require.Equal(t, naiveClusters(events), canonical(got), "round %d", round)
	}
}

func TestEngine_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	engine := New()

	for round := 0; round < 50; round++ {
		events := randomEvents(rng, 1+rng.Intn(60))
		for _, c := range Clusters(events) {
			placed, total := AssignColumns(c.Events)

			// No two events in one column overlap.
			for i := range placed {
				for j := i + 1; j < len(placed); j++ {
					if placed[i].Column == placed[j].Column {
						require.False(t, placed[i].Event.Overlaps(placed[j].Event),
							"round %d: %s and %s share column %d", round, placed[i].Event.ID, placed[j].Event.ID, placed[i].Column)
					}
				}
			}

			// Breaks and lunches never share a column when clustered.
			if len(placed) > 1 {
				for i := range placed {
					if !placed[i].Event.Kind.NonInstructional() {
						continue
					}
					for j := range placed {
						if i != j {
							require.NotEqual(t, placed[i].Column, placed[j].Column, "round %d", round)
						}
					}
				}
			}

			// Conservation for a range of caps.
			for _, maxCols := range []int{1, 2, 5, 6} {
				visible, overflow := Reduce(c.GroupID, placed, maxCols)
				hidden := 0
				if overflow != nil {
					hidden = overflow.Count
				}
				require.Equal(t, len(c.Events), len(visible)+hidden)
			}
			require.LessOrEqual(t, total, len(c.Events))
		}

		res := engine.Compute(events, Config{MaxVisibleColumns: 5})
		hidden := 0
		for _, o := range res.Overflows {
			hidden += o.Count
		}
		require.Equal(t, len(events), len(res.Assignments)+hidden)
	}
}

func TestEngine_MinimalForDisjointRegularEvents(t *testing.T) {
	var events []model.Event
	for i := 0; i < 8; i++ {
		start := at("08:00").Add(time.Duration(i) * time.Hour)
		events = append(events, model.Event{ID: fmt.Sprintf("p%d", i), Start: start, End: start.Add(time.Hour)})
	}
	for _, c := range Clusters(events) {
		_, total := AssignColumns(c.Events)
		require.Equal(t, 1, total)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	engine := New()

	for round := 0; round < 20; round++ {
		events := randomEvents(rng, 40)
		want := engine.Compute(events, Config{MaxVisibleColumns: 3})

		shuffled := append([]model.Event(nil), events...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := engine.Compute(shuffled, Config{MaxVisibleColumns: 3})

		require.Equal(t, want.Assignments, got.Assignments)
		require.Equal(t, want.Overflows, got.Overflows)
	}
}

func TestEngine_Compute(t *testing.T) {
	t.Run("chain scenario", func(t *testing.T) {
		res := New().Compute([]model.Event{
			ev("B", "09:30", "10:30"),
			ev("C", "10:15", "11:00"),
			ev("A", "09:00", "10:00"),
		}, Config{MaxVisibleColumns: 6})

		require.Equal(t, 1, res.Clusters)
		require.Empty(t, res.Overflows)
		group := GroupID("A")
		require.Equal(t, []model.Assignment{
			{EventID: "A", Column: 0, TotalColumns: 2, GroupID: group},
			{EventID: "B", Column: 1, TotalColumns: 2, GroupID: group},
			{EventID: "C", Column: 0, TotalColumns: 2, GroupID: group},
		}, res.Assignments)
	})

	t.Run("drops malformed events without aborting", func(t *testing.T) {
		res := New().Compute([]model.Event{
			ev("ok", "09:00", "10:00"),
			{ID: "no-start", End: at("10:00")},
			ev("inverted", "11:00", "10:00"),
		}, Config{})

		require.Len(t, res.Assignments, 1)
		require.Equal(t, "ok", res.Assignments[0].EventID)
		require.ElementsMatch(t, []Dropped{
			{EventID: "no-start", Reason: DropInvalidBounds},
			{EventID: "inverted", Reason: DropInvalidBounds},
		}, res.Dropped)
	})

	t.Run("duplicate ids keep the first in sort order", func(t *testing.T) {
		early := ev("dup", "09:00", "10:00")
		late := ev("dup", "13:00", "14:00")
		for _, in := range [][]model.Event{{early, late}, {late, early}} {
			res := New().Compute(in, Config{})
			require.Len(t, res.Assignments, 1)
			require.Equal(t, GroupID("dup"), res.Assignments[0].GroupID)
			require.Equal(t, []Dropped{{EventID: "dup", Reason: DropDuplicateID}}, res.Dropped)
		}
	})

	t.Run("expands templates inside the plan and clips to the window", func(t *testing.T) {
		tpl := ev("maths", "09:00", "10:00")
		tpl.IsRecurring = true
		tpl.Recurrence = model.RecurrenceWeekly

		res := New().Compute([]model.Event{tpl}, Config{
			PlanStart:   day,
			PlanEnd:     day.AddDate(0, 0, 27),
			WindowStart: day.AddDate(0, 0, 7),
			WindowEnd:   day.AddDate(0, 0, 14),
		})
		require.Len(t, res.Assignments, 1)
		require.Equal(t, "maths@20261026", res.Assignments[0].EventID)
	})

	t.Run("template passes through without a plan", func(t *testing.T) {
		tpl := ev("maths", "09:00", "10:00")
		tpl.IsRecurring = true
		tpl.Recurrence = model.RecurrenceWeekly

		res := New().Compute([]model.Event{tpl}, Config{})
		require.Len(t, res.Assignments, 1)
		require.Equal(t, "maths", res.Assignments[0].EventID)
	})

	t.Run("overflow marker per crowded cluster", func(t *testing.T) {
		var events []model.Event
		for i := 0; i < 8; i++ {
			events = append(events, ev(fmt.Sprintf("x%d", i), "09:00", "10:00"))
		}
		events = append(events, ev("alone", "12:00", "13:00"))

		res := New().Compute(events, Config{MaxVisibleColumns: 5})
		require.Len(t, res.Overflows, 1)
		require.Equal(t, 3, res.Overflows[0].Count)
		require.Len(t, res.Overflows[0].Events, 8)
		require.Len(t, res.Assignments, 6)
	})
}

type recordingCollector struct {
	mu       sync.Mutex
	dropped  map[string]int
	overflow int
	layouts  []string
}

func (r *recordingCollector) RecordLayout(view string, _ float64, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layouts = append(r.layouts, view)
}

func (r *recordingCollector) RecordDropped(reason string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dropped == nil {
		r.dropped = make(map[string]int)
	}
	r.dropped[reason] += n
}

func (r *recordingCollector) RecordOverflow(hidden int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overflow += hidden
}

func (r *recordingCollector) RecordFeedRefresh(string, bool) {}

func TestEngine_RecordsMetrics(t *testing.T) {
	rec := &recordingCollector{}
	tick := day
	engine := New(WithMetrics(rec), WithClock(func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}))

	engine.Compute([]model.Event{
		ev("a", "09:00", "10:00"),
		ev("b", "09:00", "10:00"),
		{ID: "bad"},
	}, Config{MaxVisibleColumns: 1, View: "day"})

	require.Equal(t, []string{"day"}, rec.layouts)
	require.Equal(t, map[string]int{DropInvalidBounds: 1}, rec.dropped)
	require.Equal(t, 1, rec.overflow)
}

func TestEngine_ConcurrentUse(t *testing.T) {
	engine := New()
	events := randomEvents(rand.New(rand.NewSource(3)), 30)
	want := engine.Compute(events, Config{MaxVisibleColumns: 4})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := engine.Compute(events, Config{MaxVisibleColumns: 4})
			assert.Equal(t, want.Assignments, got.Assignments)
		}()
	}
	wg.Wait()
}
