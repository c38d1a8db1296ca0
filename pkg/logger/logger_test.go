package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"nonsense", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestNew(t *testing.T) {
	log, err := New("debug")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	devLog, err := New("warn", "development")
	require.NoError(t, err)
	assert.False(t, devLog.Core().Enabled(zapcore.InfoLevel))

	prodLog, err := New("INFO", "production")
	require.NoError(t, err)
	assert.True(t, prodLog.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, prodLog.Core().Enabled(zapcore.DebugLevel))
}

func TestWithHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &Logger{Logger: zap.New(core)}

	log.WithField("route", "/events").
		WithFields(map[string]interface{}{"limit": 10}).
		WithError(errors.New("boom")).
		Named("query").
		Info("listed")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "/events", fields["route"])
	assert.EqualValues(t, 10, fields["limit"])
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "query", entry.LoggerName)
}
