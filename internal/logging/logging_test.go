package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: "info", NoColor: true})

	logger.Debug("hidden")
	logger.With("component", "insight").Info("stream opened", "kind", "overview")
	logger.WithGroup("http").Warn("slow response", "status", 200)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INF stream opened")
	assert.Contains(t, lines[0], "component=insight")
	assert.Contains(t, lines[0], "kind=overview")
	assert.Contains(t, lines[1], "WRN slow response")
	assert.Contains(t, lines[1], "http.status=200")
	assert.NotContains(t, buf.String(), "\x1b[", "no escape codes when color is disabled")
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: "debug", Format: "json"})

	logger.Debug("sso fallback timer fired", "after", "5s")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "sso fallback timer fired", entry["msg"])
	assert.Equal(t, "5s", entry["after"])
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "finsight.log")

	f, err := OpenFile(path)
	require.NoError(t, err)
	New(f, Options{NoColor: true}).Info("hello")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INF hello")
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
