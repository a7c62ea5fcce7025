package connectivity

import (
	"context"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass through
	BreakerOpen                         // calls rejected until the reset timeout elapses
	BreakerHalfOpen                     // probe calls allowed to test recovery
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker guards a single connector. After threshold consecutive
// failures it opens and rejects calls; once the reset timeout has elapsed
// it lets probe calls through, and halfOpenMax probe successes close it
// again. Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
	clock        func() time.Time

	state    BreakerState
	streak   int // consecutive failures (closed) or successes (half-open)
	openedAt time.Time
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerThreshold sets the consecutive-failure count that opens the
// breaker.
func WithBreakerThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.threshold = n }
}

// WithBreakerResetTimeout sets how long the breaker stays open before
// allowing probe calls.
func WithBreakerResetTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// WithBreakerHalfOpenMax sets how many probe successes close the breaker.
func WithBreakerHalfOpenMax(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.halfOpenMax = n }
}

// WithBreakerClock injects a clock for tests.
func WithBreakerClock(fn func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) { cb.clock = fn }
}

// NewCircuitBreaker returns a closed breaker. Defaults: 5 failures to
// open, 30s reset timeout, 2 probe successes to close.
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		threshold:    5,
		resetTimeout: 30 * time.Second,
		halfOpenMax:  2,
		clock:        time.Now,
	}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

// State reports the current state, moving an open breaker to half-open
// if its reset timeout has elapsed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.current()
}

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.streak = 0
}

// allow reports whether a call may proceed right now.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.current() != BreakerOpen
}

// observe feeds one call outcome into the state machine.
func (cb *CircuitBreaker) observe(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.current() {
	case BreakerClosed:
		if !failed {
			cb.streak = 0
			return
		}
		cb.streak++
		if cb.streak >= cb.threshold {
			cb.trip()
		}
	case BreakerHalfOpen:
		if failed {
			cb.trip()
			return
		}
		cb.streak++
		if cb.streak >= cb.halfOpenMax {
			cb.state = BreakerClosed
			cb.streak = 0
		}
	case BreakerOpen:
		// A call raced the transition to open; the outcome no longer
		// changes anything.
	}
}

// trip opens the breaker and stamps the open time. Caller holds mu.
func (cb *CircuitBreaker) trip() {
	cb.state = BreakerOpen
	cb.streak = 0
	cb.openedAt = cb.clock()
}

// current resolves the effective state, promoting open to half-open once
// the reset timeout has elapsed. Caller holds mu.
func (cb *CircuitBreaker) current() BreakerState {
	if cb.state == BreakerOpen && cb.clock().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.state = BreakerHalfOpen
		cb.streak = 0
	}
	return cb.state
}

// WithCircuitBreaker wraps a connector handler with a circuit breaker.
// While the breaker is open, calls fail fast with ErrCircuitOpen.
func WithCircuitBreaker(cb *CircuitBreaker, connector string) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if !cb.allow() {
				return nil, &ErrCircuitOpen{Connector: connector}
			}
			resp, err := next(ctx, payload)
			cb.observe(err != nil)
			return resp, err
		}
	}
}
