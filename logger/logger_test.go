package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mealroute/delivery-engine/logger"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, zap.ErrorLevel, logger.ParseLevel("error"))
	assert.Equal(t, zap.InfoLevel, logger.ParseLevel("loud"))
}

func TestNew_RespectsLevel(t *testing.T) {
	l, err := logger.New("warn", "production")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))
}
