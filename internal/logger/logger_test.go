package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want *zapcore.Level
	}{
		{"debug", levelPtr(zapcore.DebugLevel)},
		{"info", levelPtr(zapcore.InfoLevel)},
		{"warn", levelPtr(zapcore.WarnLevel)},
		{"error", levelPtr(zapcore.ErrorLevel)},
		{"loud", nil},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, parseLevel(tc.in), tc.in)
	}
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linktrail.log")

	log, err := New(Options{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	log.Info("scan finished", String("scan_id", "abc"), Int("sources", 3))
	log.Debug("hidden at info level")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scan_id":"abc"`)
	assert.Contains(t, string(data), `"sources":3`)
	assert.NotContains(t, string(data), "hidden at info level")
}

func TestWith_CarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With(String("browser", "chrome"))

	log.Warn("source failed", Error(assert.AnError))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "source failed", entry.Message)
	assert.Equal(t, "chrome", entry.ContextMap()["browser"])
}

func levelPtr(l zapcore.Level) *zapcore.Level { return &l }
