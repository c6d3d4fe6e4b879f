package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()

	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:  level,
		Format: "json",
		writer: output,
	})
	require.NoError(t, err)
	return logger, output
}

func TestNew_JSONFormat(t *testing.T) {
	logger, output := newJSONLogger(t, "debug")

	logger.Debug("test debug message", slog.String("key", "value"))

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))

	assert.Equal(t, "DEBUG", logEntry["level"])
	assert.Equal(t, "test debug message", logEntry["msg"])
	assert.Equal(t, "value", logEntry["key"])
	assert.Contains(t, logEntry, "time")
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		emit     func(l *Logger)
		wantMsg  string
		wantAttr [2]string
	}{
		{
			name:  "info drops debug",
			level: "info",
			emit: func(l *Logger) {
				l.Debug("debug message")
				l.Info("info message", slog.String("type", "test"))
			},
			wantMsg:  "info message",
			wantAttr: [2]string{"type", "test"},
		},
		{
			name:  "warn drops info",
			level: "warn",
			emit: func(l *Logger) {
				l.Info("info message")
				l.Warn("warn message", slog.String("severity", "high"))
			},
			wantMsg:  "warn message",
			wantAttr: [2]string{"severity", "high"},
		},
		{
			name:  "error drops warn",
			level: "error",
			emit: func(l *Logger) {
				l.Warn("warn message")
				l.Error("error message", slog.String("code", "500"))
			},
			wantMsg:  "error message",
			wantAttr: [2]string{"code", "500"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, output := newJSONLogger(t, tt.level)
			tt.emit(logger)

			lines := strings.Split(strings.TrimSpace(output.String()), "\n")
			require.Len(t, lines, 1, "suppressed level must not be logged")

			var logEntry map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(lines[0]), &logEntry))

			assert.Equal(t, tt.wantMsg, logEntry["msg"])
			assert.Equal(t, tt.wantAttr[1], logEntry[tt.wantAttr[0]])
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
		writer:     output,
	})
	require.NoError(t, err)

	logger.Info("console test")

	// tint renders the level as "INF"
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "console test")
}

func TestNew_SourceLocation(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:        "info",
		Format:       "json",
		EnableSource: true,
		writer:       output,
	})
	require.NoError(t, err)

	logger.Info("message with source")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))

	require.Contains(t, logEntry, "source")
	source := logEntry["source"].(map[string]interface{})
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseLevel(tt.level), "level %q", tt.level)
	}
}

func TestLogger_With(t *testing.T) {
	logger, output := newJSONLogger(t, "info")

	contextLogger := logger.With(
		slog.String("service", "api"),
		slog.Int("version", 1),
	)
	require.NotNil(t, contextLogger)

	contextLogger.Info("operation complete")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))

	assert.Equal(t, "api", logEntry["service"])
	assert.Equal(t, float64(1), logEntry["version"])
	assert.Equal(t, "operation complete", logEntry["msg"])
}
