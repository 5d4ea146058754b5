package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("writes defaults on first run", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "config.yaml")

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, DefaultConfig(), cfg)

		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("reads and normalizes an existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		body := `
timezone: UTC
week_start: friday
plan:
  start: "2026-09-01"
  end: "2027-06-30"
views:
  day:
    max_visible_columns: 4
feeds:
  - url: https://example.com/t.ics
    name: main
`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, "monday", cfg.WeekStart)
		require.Equal(t, 4, cfg.MaxVisibleColumns("day"))
		require.Equal(t, DefaultWeekColumns, cfg.MaxVisibleColumns("week"))
		require.Equal(t, "main", cfg.Feeds[0].SourceID())

		start, end, err := cfg.PlanRange(cfg.Location())
		require.NoError(t, err)
		require.Equal(t, time.September, start.Month())
		require.Equal(t, 2027, end.Year())
	})

	t.Run("rejects an inverted plan", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		body := "plan:\n  start: \"2027-01-01\"\n  end: \"2026-01-01\"\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		_, err := Load(path)
		require.ErrorIs(t, err, ErrInvalidPlan)
	})

	t.Run("rejects an unknown timezone", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("timezone: Mars/Olympus\n"), 0o600))

		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := Load("")
		require.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Plan = PlanConfig{Start: "2026-09-01", End: "2026-12-20"}
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestPlanRange_Unset(t *testing.T) {
	start, end, err := DefaultConfig().PlanRange(time.UTC)
	require.NoError(t, err)
	require.True(t, start.IsZero())
	require.True(t, end.IsZero())
}
