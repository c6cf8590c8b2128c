package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		enabled  slog.Level
		disabled slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"warn level", "warn", slog.LevelWarn, slog.LevelInfo},
		{"warning alias", "WARNING", slog.LevelWarn, slog.LevelInfo},
		{"error level", "error", slog.LevelError, slog.LevelWarn},
		{"unknown falls back to info", "verbose", slog.LevelInfo, slog.LevelDebug},
		{"default info", "", slog.LevelInfo, slog.LevelDebug},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			assert.True(t, logger.Enabled(ctx, tt.enabled))
			assert.False(t, logger.Enabled(ctx, tt.disabled))
		})
	}
}

func TestDefaultLoggerIsInfo(t *testing.T) {
	logger := Default()
	ctx := context.Background()
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
	assert.NotSame(t, logger, Default())
}

func TestNewWithWriterEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info").With("component", "test")
	logger.Info("turn processed", "risk_level", "RED")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "turn processed", line["msg"])
	assert.Equal(t, "RED", line["risk_level"])
	assert.Equal(t, "test", line["component"])
}
