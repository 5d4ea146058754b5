package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyKind(t *testing.T) {
	t.Run("period type wins over title", func(t *testing.T) {
		require.Equal(t, KindLunch, ClassifyKind("lunch", "Maths"))
		require.Equal(t, KindBreak, ClassifyKind(" BREAK ", "Lunch duty"))
		require.Equal(t, KindRegular, ClassifyKind("lesson", "Coffee break"))
	})

	t.Run("falls back to title keywords", func(t *testing.T) {
		require.Equal(t, KindLunch, ClassifyKind("", "Lunch"))
		require.Equal(t, KindBreak, ClassifyKind("", "Morning Break"))
		require.Equal(t, KindBreak, ClassifyKind("", "recess"))
		require.Equal(t, KindRegular, ClassifyKind("", "Physics 3B"))
		require.Equal(t, KindLunch, ClassifyKind("", "Lunch-break (canteen)"))
	})

	t.Run("keywords must be whole words", func(t *testing.T) {
		require.Equal(t, KindRegular, ClassifyKind("", "Breakout session"))
		require.Equal(t, KindRegular, ClassifyKind("", "Breakfast club"))
		require.Equal(t, KindRegular, ClassifyKind("", "Unbreakable code workshop"))
		require.Equal(t, KindRegular, ClassifyKind("", "Lunchbox design"))
		require.Equal(t, KindBreak, ClassifyKind("", "Break/recess"))
	})
}

func TestEvent_IsOverride(t *testing.T) {
	rid := time.Date(2026, 10, 7, 9, 0, 0, 0, time.UTC)
	require.True(t, Event{SeriesID: "s", RecurrenceID: rid}.IsOverride())
	require.False(t, Event{SeriesID: "s"}.IsOverride())
	require.False(t, Event{RecurrenceID: rid}.IsOverride())
}

func TestKind_JSON(t *testing.T) {
	b, err := json.Marshal(KindLunch)
	require.NoError(t, err)
	require.JSONEq(t, `"lunch"`, string(b))

	var k Kind
	require.NoError(t, json.Unmarshal([]byte(`"break"`), &k))
	require.Equal(t, KindBreak, k)

	require.Error(t, json.Unmarshal([]byte(`"nap"`), &k))
}

func TestEvent_Overlaps(t *testing.T) {
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	a := Event{Start: base, End: base.Add(time.Hour)}
	touching := Event{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}
	inside := Event{Start: base.Add(10 * time.Minute), End: base.Add(20 * time.Minute)}

	require.False(t, a.Overlaps(touching))
	require.False(t, touching.Overlaps(a))
	require.True(t, a.Overlaps(inside))
	require.True(t, inside.Overlaps(a))
}

func TestEvent_Valid(t *testing.T) {
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	require.True(t, Event{Start: base, End: base.Add(time.Minute)}.Valid())
	require.False(t, Event{Start: base, End: base}.Valid())
	require.False(t, Event{End: base}.Valid())
	require.False(t, Event{Start: base.Add(time.Hour), End: base}.Valid())
}
