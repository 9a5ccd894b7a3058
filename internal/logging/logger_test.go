package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		development bool
	}{
		{name: "production logger", development: false},
		{name: "development logger", development: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.development)
			require.NoError(t, err)
			assert.NotNil(t, logger)

			logger.Info("test info message")
			logger.Debug("test debug message")
			logger.Warn("test warn message", zap.String("key", "value"))
			logger.Error("test error message", zap.Int("count", 42))
		})
	}
}

func TestNewZapLogger(t *testing.T) {
	for _, development := range []bool{false, true} {
		zapLog, err := NewLogger(development)
		require.NoError(t, err)

		logrLogger := NewZapLogger(zapLog, development)
		logrLogger.Info("test message", "key", "value", "number", 42)
		logrLogger.Error(nil, "test error", "reason", "testing")
		logrLogger.WithName("orchestrator").Info("named logger")
		logrLogger.WithValues("component", "replica").Info("logger with values")
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background())
	id := GetRequestID(ctx)

	require.NotEmpty(t, id)
	assert.Len(t, id, 36)
	assert.Contains(t, id, "-")
}

func TestGetRequestID_NoneSet(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestRequestIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GetRequestID(WithRequestID(context.Background()))
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "request ID must be unique, got duplicate %s", id)
		seen[id] = true
	}
}

func TestWithRequestIDField(t *testing.T) {
	logger, err := NewLogger(false)
	require.NoError(t, err)

	t.Run("context with request ID adds field", func(t *testing.T) {
		ctx := WithRequestID(context.Background())
		withID := WithRequestIDField(ctx, logger)
		assert.NotNil(t, withID)
		withID.Info("test message")
	})

	t.Run("context without request ID returns original logger", func(t *testing.T) {
		withID := WithRequestIDField(context.Background(), logger)
		assert.Same(t, logger, withID)
	})
}

func TestDecisionHelpersDoNotPanic(t *testing.T) {
	logger, err := NewLogger(false)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		LogReplicaDecision(logger, "checkout", "default", 4, 6, "composite scale-up")
		LogNodeDecision(logger, "scale_up", 2, "capacity critical")
		LogDrainStep(logger, "node-1", "cordon", nil)
		LogDrainStep(logger, "node-1", "evict", errors.New("pdb blocked"))
		LogOOMRemediation(logger, "checkout", "app", 512<<20, 768<<20, true)
		LogClusterCall(logger, "PATCH", "deployments/checkout", 25*time.Millisecond, nil)
		LogClusterCall(logger, "PATCH", "deployments/checkout", 25*time.Millisecond, errors.New("conflict"))
		LogTick(logger, "tick-1", 10*time.Millisecond, nil)
	})
}
