package logging_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridmarket/negotiator/internal/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))

	// Unknown names stay at info rather than silencing the logs.
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel(""))
}

func TestNewNopDiscardsEverything(t *testing.T) {
	logger := logging.NewNop()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
}
