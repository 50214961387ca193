package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCustomLogger(&buf, LogLevelWarn)

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn %s", "line")
	logger.Error("error %d", 7)

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "[WARN] warn line")
	assert.Contains(t, out, "[ERROR] error 7")
	assert.Contains(t, out, "[ragchat] ")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogLevelDebug, false},
		{"INFO", LogLevelInfo, false},
		{"", LogLevelInfo, false},
		{" warning ", LogLevelWarn, false},
		{"error", LogLevelError, false},
		{"off", LogLevelNone, false},
		{"verbose", LogLevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "NONE", LogLevelNone.String())
	assert.Equal(t, "UNKNOWN(42)", LogLevel(42).String())
}

func TestDefaultLoggerSwap(t *testing.T) {
	original := GetDefaultLogger()
	defer SetDefaultLogger(original)

	var buf bytes.Buffer
	SetDefaultLogger(NewCustomLogger(&buf, LogLevelDebug))

	Debug("package %s", "debug")
	Info("package info")
	Warn("package warn")
	Error("package error")

	out := buf.String()
	assert.Contains(t, out, "package debug")
	assert.Contains(t, out, "package error")

	noop := &NoOpLogger{}
	assert.Same(t, noop, OrDefault(noop))
	assert.Equal(t, GetDefaultLogger(), OrDefault(nil))
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	logger := Named(NewCustomLogger(&buf, LogLevelInfo), "generate")

	logger.Debug("hidden")
	logger.Warn("fallback after %d fragments", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] generate: fallback after 2 fragments")
}

func TestNamedNilUsesDefault(t *testing.T) {
	original := GetDefaultLogger()
	defer SetDefaultLogger(original)

	logger := Named(nil, "ingest")

	var buf bytes.Buffer
	SetDefaultLogger(NewCustomLogger(&buf, LogLevelDebug))
	logger.Info("loaded %d documents", 1)

	assert.Contains(t, buf.String(), "[INFO] ingest: loaded 1 documents")
}
