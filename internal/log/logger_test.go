package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestConsoleHandlerText(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Level: "debug", Format: "text"}
	logger := slog.New(NewConsoleHandler(&buf, cfg, slog.LevelDebug))

	logger.Info("sign-in started", "provider", "google")

	out := buf.String()
	assert.Contains(t, out, "sign-in started")
	assert.Contains(t, out, "provider=google")
}

func TestConsoleHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Level: "info", Format: "json"}
	logger := slog.New(NewConsoleHandler(&buf, cfg, slog.LevelInfo))

	logger.Warn("state mismatch", "provider", "github")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "state mismatch", entry["msg"])
	assert.Equal(t, "github", entry["provider"])
}

func TestConsoleHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Level: "warn", Format: "text"}
	logger := slog.New(NewConsoleHandler(&buf, cfg, slog.LevelWarn))

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	assert.Empty(t, buf.String())

	logger.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}
