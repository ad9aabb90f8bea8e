package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CIRCUIT BREAKER - Pause signal trading after repeated redirects
// ═══════════════════════════════════════════════════════════════════════════════

// ErrCircuitOpen rejects signal trades while the breaker cools down
var ErrCircuitOpen = errors.New("circuit breaker open")

type CircuitBreaker struct {
	mu sync.RWMutex

	// Configuration
	maxFailures      int
	cooldownDuration time.Duration

	// State
	consecutiveFailures int
	tripped             bool
	trippedAt           time.Time
	reason              string

	now func() time.Time
}

// NewCircuitBreaker trips after maxFailures consecutive failures
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:      maxFailures,
		cooldownDuration: cooldown,
		now:              time.Now,
	}
}

// Allow returns ErrCircuitOpen while tripped, resetting once the cooldown passed
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.tripped {
		return nil
	}
	if cb.now().Sub(cb.trippedAt) >= cb.cooldownDuration {
		cb.reset()
		log.Info().Msg("✅ Circuit breaker reset after cooldown")
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.reason)
}

// RecordFailure counts one failure and trips at the threshold
func (cb *CircuitBreaker) RecordFailure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	if cb.maxFailures > 0 && cb.consecutiveFailures >= cb.maxFailures && !cb.tripped {
		cb.trip(reason)
	}
}

// RecordSuccess clears the failure streak
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
}

// trip activates the circuit breaker
func (cb *CircuitBreaker) trip(reason string) {
	cb.tripped = true
	cb.trippedAt = cb.now()
	cb.reason = reason
	log.Warn().
		Str("reason", reason).
		Int("consecutive_failures", cb.consecutiveFailures).
		Dur("cooldown", cb.cooldownDuration).
		Msg("🚨 CIRCUIT BREAKER TRIPPED")
}

// reset clears the circuit breaker state
func (cb *CircuitBreaker) reset() {
	cb.consecutiveFailures = 0
	cb.tripped = false
	cb.reason = ""
}

// IsTripped returns current trip state
func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.tripped
}

// Stats returns circuit breaker statistics
func (cb *CircuitBreaker) Stats() (consecutiveFailures int, tripped bool, reason string) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.consecutiveFailures, cb.tripped, cb.reason
}

// ForceReset manually resets the circuit breaker
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.reset()
	log.Info().Msg("Circuit breaker manually reset")
}
