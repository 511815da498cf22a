package orchestrator

import (
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed is the normal operating state - requests flow through.
	BreakerClosed BreakerState = iota
	// BreakerOpen means the circuit has tripped - requests are rejected.
	BreakerOpen
	// BreakerHalfOpen is the testing state - requests allowed to probe recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// RecoveryTimeout is how long to wait before probing recovery (half-open).
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of successes in half-open before closing.
	SuccessThreshold int
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker is a per-service failure gate. When a service fails repeatedly the
// circuit opens and requests are rejected immediately, so a failing synthesis
// provider cannot slow down transcription or generation.
type Breaker struct {
	name   string
	config BreakerConfig
	mu     sync.Mutex

	state           BreakerState
	failures        int
	consecutiveSucc int
	lastStateChange time.Time
}

// NewBreaker creates a circuit breaker for a named service.
func NewBreaker(name string, config BreakerConfig) *Breaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 3
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}

	return &Breaker{
		name:            name,
		config:          config,
		state:           BreakerClosed,
		lastStateChange: time.Now(),
	}
}

// Allow reports whether a request may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.lastStateChange) >= b.config.RecoveryTimeout {
			b.transitionTo(BreakerHalfOpen)
			return true
		}
		return false
	case BreakerHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful request.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0

	if b.state == BreakerHalfOpen {
		b.consecutiveSucc++
		if b.consecutiveSucc >= b.config.SuccessThreshold {
			b.transitionTo(BreakerClosed)
		}
	}
}

// RecordFailure records a failed request.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.consecutiveSucc = 0

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(BreakerOpen)
		}
	case BreakerHalfOpen:
		// Probe failed, reopen.
		b.transitionTo(BreakerOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transitionTo changes state. Must be called with the lock held.
func (b *Breaker) transitionTo(newState BreakerState) {
	if b.state == newState {
		return
	}
	b.state = newState
	b.lastStateChange = time.Now()
	if newState == BreakerClosed {
		b.failures = 0
		b.consecutiveSucc = 0
	}
}

// breakerRegistry manages one breaker per service name.
type breakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   BreakerConfig
}

func newBreakerRegistry(config BreakerConfig) *breakerRegistry {
	if config.FailureThreshold == 0 {
		config = DefaultBreakerConfig()
	}
	return &breakerRegistry{
		breakers: make(map[string]*Breaker),
		config:   config,
	}
}

// get returns the breaker for a service, creating one if needed.
func (r *breakerRegistry) get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = NewBreaker(name, r.config)
	r.breakers[name] = b
	return b
}

// states returns a snapshot of all breaker states by service name.
func (r *breakerRegistry) states() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}
