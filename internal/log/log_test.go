package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	SetLevel(LevelInfo)
	Debug("hidden", "k", 1)
	Info("shown", "k", 2)
	Error("failed", errors.New("boom"), "feed", "main")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "msg=shown k=2")
	require.Contains(t, out, "err=boom feed=main")

	buf.Reset()
	SetLevel(LevelDebug)
	Debug("visible now")
	require.Contains(t, buf.String(), "visible now")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelDebug, ParseLevel("debug"))
	require.Equal(t, LevelWarn, ParseLevel("warning"))
	require.Equal(t, LevelError, ParseLevel(" ERROR "))
	require.Equal(t, LevelInfo, ParseLevel("verbose"))
}
