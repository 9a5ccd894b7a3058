package cluster

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-io/pulse/pkg/metrics"
)

// ErrCircuitOpen is returned when the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState names the breaker's current mode.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

func (s BreakerState) metricValue() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// BreakerConfig configures CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultBreakerConfig mirrors Pulse's default cluster-client tolerance:
// five consecutive failures opens it, two successes in half-open closes it.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker protects the cluster client from hammering an unreachable
// API server: once tripped, calls fail fast until the timeout elapses.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	logger *zap.Logger

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	successCount    int
	lastStateChange time.Time
}

// NewCircuitBreaker constructs a CircuitBreaker identified by name (used as
// the Prometheus label).
func NewCircuitBreaker(name string, config BreakerConfig, logger *zap.Logger) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger.Named("circuit-breaker").With(zap.String("client", name)),
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
	metrics.RecordCircuitBreakerState(name, int(StateClosed.metricValue()))
	return cb
}

// Call runs fn under the breaker's protection.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.config.Timeout {
			cb.transition(StateHalfOpen, "timeout elapsed")
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failureCount = 0
		cb.successCount++
		if cb.state == StateHalfOpen && cb.successCount >= cb.config.SuccessThreshold {
			cb.transition(StateClosed, "success threshold reached")
		}
		return
	}

	cb.successCount = 0
	cb.failureCount++

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateOpen, "failure in half-open state")
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transition(StateOpen, "failure threshold reached")
		}
	}
}

func (cb *CircuitBreaker) transition(to BreakerState, reason string) {
	from := cb.state
	cb.state = to
	cb.lastStateChange = time.Now()
	cb.failureCount = 0
	cb.successCount = 0

	metrics.RecordCircuitBreakerState(cb.name, int(to.metricValue()))
	cb.logger.Info("circuit breaker state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
