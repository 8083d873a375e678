//go:build !tinygo

package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerLevelGate(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core, LevelWarn)

	logger.Info("dropped")
	logger.Warn("kept", Float64("value", 3.5))
	logger.Error("also kept", Error(errors.New("boom")))

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "kept", entries[0].Message)
	assert.Equal(t, 3.5, entries[0].ContextMap()["value"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestLoggerWithSharesLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	parent := NewWithCore(core, LevelInfo)
	child := parent.With(String("servo", "arm"))

	parent.SetLevel(LevelError)
	child.Warn("suppressed")
	assert.Equal(t, 0, logs.Len())

	child.Error("visible")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "arm", logs.All()[0].ContextMap()["servo"])
}

func TestSilentLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core, LevelSilent)
	logger.Error("nothing")
	assert.Equal(t, 0, logs.Len())

	Nop().Error("nothing either")
}

func TestErrorFieldNil(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core, LevelDebug)
	logger.Info("no error", Error(nil))
	assert.Equal(t, 1, logs.Len())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":        LevelInfo,
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"severe":  LevelError,
		"fatal":   LevelFatal,
		"off":     LevelSilent,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestFatalIgnoresLevelGate(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core, LevelSilent, zap.WithFatalHook(zapcore.WriteThenPanic))

	assert.Panics(t, func() {
		logger.With(String("servo", "arm")).Fatal("cannot continue", Uint8("oid", 3))
	})
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.FatalLevel, entry.Level)
	assert.Equal(t, "arm", entry.ContextMap()["servo"])
	assert.Equal(t, uint8(3), entry.ContextMap()["oid"])
	assert.Equal(t, "fatal", LevelFatal.String())
}
