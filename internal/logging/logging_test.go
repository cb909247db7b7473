package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelError, levelFromString("ERROR"))
	require.Equal(t, slog.LevelWarn, levelFromString(" warning "))
	require.Equal(t, slog.LevelInfo, levelFromString("info"))
	require.Equal(t, slog.LevelDebug, levelFromString(""))
}

func TestNewWithWriterFormats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "json").Info("cycle done", "new", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "cycle done", rec["msg"])
	require.EqualValues(t, 3, rec["new"])

	buf.Reset()
	logger := NewWithWriter(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown", "component", "pipeline")
	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.True(t, strings.Contains(out, "msg=shown") && strings.Contains(out, "component=pipeline"))
}
