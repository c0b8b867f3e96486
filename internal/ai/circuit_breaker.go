package ai

import (
	"cvtailor/internal/config"
	"cvtailor/internal/errors"

	"github.com/sony/gobreaker/v2"
)

// circuitBreaker wraps calls returning T with the circuit breaker pattern.
// A nil breaker executes calls directly.
type circuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// tripPolicy decides when the breaker opens.
type tripPolicy func(counts gobreaker.Counts) bool

// ratioPolicy trips once minRequests have been seen and the failure ratio reaches threshold.
func ratioPolicy(minRequests uint32, threshold float64) tripPolicy {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests == 0 {
			return false
		}
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= minRequests && failureRatio >= threshold
	}
}

// newCircuitBreaker returns nil when the breaker is disabled in cfg.
func newCircuitBreaker[T any](name string, cfg config.CircuitBreakerConfig, trip tripPolicy, logger *errors.Logger) *circuitBreaker[T] {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: trip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
				"max_requests", cfg.MaxRequests,
				"failure_threshold", cfg.FailureThreshold)
		},
	}
	return &circuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn under breaker protection
func (b *circuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// Stats returns circuit breaker statistics
func (b *circuitBreaker[T]) Stats() map[string]any {
	if b == nil || b.cb == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"name":    b.cb.Name(),
		"state":   b.cb.State().String(),
		"counts":  b.cb.Counts(),
		"enabled": true,
	}
}

// IsHealthy reports whether the breaker is closed. A disabled breaker is always healthy.
func (b *circuitBreaker[T]) IsHealthy() bool {
	if b == nil || b.cb == nil {
		return true
	}
	return b.cb.State() == gobreaker.StateClosed
}
