package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	Set(zap.New(core))
	t.Cleanup(func() { Set(zap.NewNop()) })
	return logs
}

func TestWithCarriesFields(t *testing.T) {
	logs := observe(t, zap.DebugLevel)

	connLog := With(zap.String("identity", "alice"), zap.String("conn", "c-1"))
	connLog.Debug("closed")
	Info("bound", zap.String("identity", "bob"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "closed", entries[0].Message)
	assert.Equal(t, map[string]any{"identity": "alice", "conn": "c-1"}, entries[0].ContextMap())
	assert.Equal(t, map[string]any{"identity": "bob"}, entries[1].ContextMap())
}

func TestLevelFilter(t *testing.T) {
	logs := observe(t, zap.WarnLevel)

	Debug("dropped")
	Info("dropped")
	Warn("kept")
	Error("kept")

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, 0, logs.FilterMessage("dropped").Len())
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	t.Cleanup(func() { Set(zap.NewNop()) })

	assert.Error(t, Init("loud", false))
	assert.NoError(t, Init("debug", true))
}
