package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	require.NoError(t, Init("debug", true))
	assert.True(t, Log().Core().Enabled(zapcore.DebugLevel))
	assert.Same(t, Log(), zap.L())
	assert.NotNil(t, S())

	require.NoError(t, Init("warn", false))
	assert.False(t, Log().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Log().Core().Enabled(zapcore.WarnLevel))
	Sync()
}

func TestInitInvalidLevel(t *testing.T) {
	assert.Error(t, InitProduction("loud"))
}
