package cluster

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCircuitBreaker_OpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Hour}, zap.NewNop())

	for i := 0; i < 3; i++ {
		err := cb.Call(func() error { return errors.New("boom") })
		require.Error(t, err)
	}

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Call(func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond}, zap.NewNop())

	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond}, zap.NewNop())

	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	time.Sleep(20 * time.Millisecond)

	require.Error(t, cb.Call(func() error { return errors.New("still broken") }))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", DefaultBreakerConfig(), zap.NewNop())

	for i := 0; i < 4; i++ {
		_ = cb.Call(func() error { return errors.New("boom") })
	}
	assert.Equal(t, StateClosed, cb.State())
}
