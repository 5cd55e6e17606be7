package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	t.Run("Initialize logger with valid path", func(t *testing.T) {
		err := Init(logPath, "debug")
		require.NoError(t, err)

		Info("info message")
		Debug("debug message")
		Warn("warn message")
		Error("error message", zap.String("event_type", "test"))

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)

		lines := splitLines(string(content))
		require.Len(t, lines, 4)

		logLevels := []string{"info", "debug", "warn", "error"}
		messages := []string{"info message", "debug message", "warn message", "error message"}

		for i, line := range lines {
			var entry map[string]interface{}
			err := json.Unmarshal([]byte(line), &entry)
			require.NoError(t, err)

			assert.Equal(t, logLevels[i], entry["level"])
			assert.Equal(t, messages[i], entry["msg"])
			assert.Contains(t, entry, "timestamp")
		}
	})

	t.Run("Log without initialization", func(t *testing.T) {
		log = nil

		// These should not panic
		Info("test message")
		Debug("test message")
		Warn("test message")
		Error("test message")
	})
}

func TestLoggerLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")

	require.NoError(t, Init(logPath, "warn"))
	Debug("hidden")
	Info("hidden")
	Warn("shown")

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := splitLines(string(content))
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "debug"},
		{in: "INFO", want: "info"},
		{in: "warning", want: "warn"},
		{in: "error", want: "error"},
		{in: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lvl, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, lvl.String())
		})
	}
}

func TestLoggerInitWithInvalidLevel(t *testing.T) {
	err := Init(filepath.Join(t.TempDir(), "x.log"), "loud")
	assert.Error(t, err)
}

func TestLoggerWithoutInit(t *testing.T) {
	log = nil

	Info("test info")
	Error("test error")
	Debug("test debug")
	Warn("test warn")
	Fatal("test fatal")
	err := Sync()
	assert.NoError(t, err)
}

func TestLoggerFatal(t *testing.T) {
	SetTestMode(true)
	defer SetTestMode(false)

	logPath := filepath.Join(t.TempDir(), "fatal.log")
	require.NoError(t, Init(logPath, "info"))

	Fatal("This is a fatal message")

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)

	require.Contains(t, string(content), "This is a fatal message")
	require.Contains(t, string(content), "level\":\"error\"")
}

func splitLines(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
