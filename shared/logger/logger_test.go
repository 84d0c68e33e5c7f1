package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandler(t *testing.T) {
	tests := []struct {
		name      string
		config    *Config
		checkFunc func(t *testing.T, logger *slog.Logger, output *bytes.Buffer)
	}{
		{
			name:   "json format with debug level",
			config: &Config{Level: "debug", Format: "json"},
			checkFunc: func(t *testing.T, logger *slog.Logger, output *bytes.Buffer) {
				logger.Debug("queue depth sampled", slog.String("queue", "jobs"))

				var logEntry map[string]interface{}
				err := json.Unmarshal(output.Bytes(), &logEntry)
				require.NoError(t, err)

				assert.Equal(t, "DEBUG", logEntry["level"])
				assert.Equal(t, "queue depth sampled", logEntry["msg"])
				assert.Equal(t, "jobs", logEntry["queue"])
				assert.Contains(t, logEntry, "time")
			},
		},
		{
			name:   "info level suppresses debug",
			config: &Config{Level: "info", Format: "json"},
			checkFunc: func(t *testing.T, logger *slog.Logger, output *bytes.Buffer) {
				logger.Debug("never shown")
				logger.Info("worker started", slog.Int("concurrency", 4))

				lines := strings.Split(strings.TrimSpace(output.String()), "\n")
				require.Len(t, lines, 1)
				assert.Contains(t, lines[0], "worker started")
			},
		},
		{
			name:   "console format renders message",
			config: &Config{Level: "info", Format: "console"},
			checkFunc: func(t *testing.T, logger *slog.Logger, output *bytes.Buffer) {
				logger.Info("delivery enqueued")
				assert.Contains(t, output.String(), "delivery enqueued")
			},
		},
		{
			name:   "unknown level falls back to info",
			config: &Config{Level: "bogus", Format: "json"},
			checkFunc: func(t *testing.T, logger *slog.Logger, output *bytes.Buffer) {
				logger.Debug("filtered out")
				logger.Warn("cap nearly reached")

				lines := strings.Split(strings.TrimSpace(output.String()), "\n")
				require.Len(t, lines, 1)
				assert.Contains(t, lines[0], "cap nearly reached")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewHandler(&buf, tt.config))
			tt.checkFunc(t, logger, &buf)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
