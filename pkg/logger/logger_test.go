package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevelSelection(t *testing.T) {
	log := New("debug")
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log = New("warn")
	require.False(t, log.Core().Enabled(zapcore.InfoLevel))
	require.True(t, log.Core().Enabled(zapcore.WarnLevel))

	// Garbage falls back to info rather than failing.
	log = New("nonsense")
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))
	require.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNewLevelFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	log := New("")
	require.False(t, log.Core().Enabled(zapcore.WarnLevel))
	require.True(t, log.Core().Enabled(zapcore.ErrorLevel))

	// An explicit level beats the environment.
	log = New("debug")
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))
}
