package relay

import (
	"errors"
	"sync"
	"time"
)

// breakerState is the circuit breaker state guarding provider calls.
type breakerState int

const (
	// breakerClosed lets calls through normally.
	breakerClosed breakerState = iota
	// breakerOpen short-circuits straight to the fallback path.
	breakerOpen
	// breakerHalfOpen allows probe calls to test recovery.
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// errBreakerOpen is returned by allow while the breaker rejects calls.
var errBreakerOpen = errors.New("provider circuit open")

// BreakerConfig configures the provider circuit breaker.
type BreakerConfig struct {
	// FailureThreshold opens the breaker after this many consecutive
	// failures.
	FailureThreshold int
	// SuccessThreshold closes the breaker after this many probe
	// successes in half-open.
	SuccessThreshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the defaults used in serve mode.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// breaker tracks provider health so a hard outage stops burning
// request latency on calls that will not succeed. While open, turns
// go straight to the fallback generator.
type breaker struct {
	mu sync.Mutex

	state       breakerState
	failures    int
	successes   int
	lastFailure time.Time

	failureThreshold int
	successThreshold int
	cooldown         time.Duration
}

func newBreaker(cfg BreakerConfig) *breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &breaker{
		state:            breakerClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
	}
}

// allow reports whether a provider call may proceed, moving the
// breaker from open to half-open once the cooldown has passed.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return nil
	case breakerOpen:
		if time.Since(b.lastFailure) > b.cooldown {
			b.state = breakerHalfOpen
			b.successes = 0
			return nil
		}
		return errBreakerOpen
	case breakerHalfOpen:
		return nil
	}
	return nil
}

// success records a healthy provider call.
func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = breakerClosed
			b.failures = 0
			b.successes = 0
		}
	case breakerClosed:
		b.failures = 0
	}
}

// failure records a failed provider call.
func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case breakerClosed:
		if b.failures >= b.failureThreshold {
			b.state = breakerOpen
		}
	case breakerHalfOpen:
		b.state = breakerOpen
		b.successes = 0
	}
}

// currentState returns the breaker state for logging and tests.
func (b *breaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
