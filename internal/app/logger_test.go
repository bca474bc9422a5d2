package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerDevelopmentEnablesDebug(t *testing.T) {
	logger := NewLogger(&Config{AppEnv: "development", LogFormat: "pretty"})

	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewLoggerProductionFiltersDebug(t *testing.T) {
	logger := NewLogger(&Config{AppEnv: "production", LogFormat: "json"})

	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestNewLoggerNilConfig(t *testing.T) {
	logger := NewLogger(nil)

	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
