package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf, Component: "composer"})
	l.Debug("composer.provider.failed", "provider", "TIME")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "composer.provider.failed", entry["msg"])
	assert.Equal(t, "composer", entry["component"])
	assert.Equal(t, "TIME", entry["provider"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})
	l.Info("dropped")
	assert.Empty(t, buf.String())

	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, lvl)

	lvl, err = ParseLevel("nope")
	assert.Error(t, err)
	assert.Equal(t, LogLevelInfo, lvl)
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.Warn("plan.step.retry", "step", "s1", "attempt", 2)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "plan.step.retry", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "s1", entry.ContextMap()["step"])
}

func TestTimer(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	done := Timer(NewZapAdapter(zap.New(core)), "model.generate", "tier", "TEXT_LARGE")

	done(errors.New("boom"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "model.generate.failed", logs.All()[0].Message)
	assert.Equal(t, "TEXT_LARGE", logs.All()[0].ContextMap()["tier"])
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOpLogger{}, OrNoOp(nil))
}
