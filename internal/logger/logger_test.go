package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInit_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", " INFO "} {
		require.NoError(t, Init(level), level)
		require.NotNil(t, Logger)
	}
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init("verbose"))
	require.NotNil(t, Logger)
	assert.False(t, Logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, Logger.Core().Enabled(zapcore.InfoLevel))
}

func TestSync_BeforeInit(t *testing.T) {
	Logger = nil
	Sync()
	require.NoError(t, Init(""))
	Sync()
}
