// Package circuitbreaker guards handler invocation against a remote
// dependency that is failing repeatedly: once a handler's failure count
// crosses its threshold the breaker opens and short-circuits further calls
// until a cooldown elapses, then allows a probe in HALF_OPEN before fully
// closing again.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is one of CLOSED, OPEN, HALF_OPEN.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Breaker is a single named circuit breaker, safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	name                string
	failureThreshold    int
	resetTimeout        time.Duration
	halfOpenMaxCalls    int
	clock               func() time.Time

	state                  State
	failureCount           int
	lastFailureTime        *time.Time
	successCountInHalfOpen int
}

// New builds a Breaker, starting CLOSED.
func New(name string, failureThreshold int, resetTimeout time.Duration, halfOpenMaxCalls int) *Breaker {
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
		state:            Closed,
		clock:            time.Now,
	}
}

// Name returns the breaker's identifier, typically the handler name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordSuccess registers a successful call. In HALF_OPEN, enough
// consecutive successes close the breaker; in CLOSED, it resets the
// failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.successCountInHalfOpen++
		if b.successCountInHalfOpen >= b.halfOpenMaxCalls {
			b.close()
		}
	case Closed:
		b.failureCount = 0
	}
}

// RecordFailure registers a failed call. Any failure while HALF_OPEN
// reopens the breaker; in CLOSED, crossing the threshold opens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	now := b.clock()
	b.lastFailureTime = &now

	switch b.state {
	case HalfOpen:
		b.open()
	case Closed:
		if b.failureCount >= b.failureThreshold {
			b.open()
		}
	}
}

// CanExecute reports whether a call may proceed, transitioning OPEN to
// HALF_OPEN when the reset timeout has elapsed.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.shouldAttemptReset() {
			b.halfOpen()
			return true
		}
		return false
	default: // HalfOpen
		return true
	}
}

func (b *Breaker) open() {
	b.state = Open
	b.failureCount = 0
	b.successCountInHalfOpen = 0
}

func (b *Breaker) halfOpen() {
	b.state = HalfOpen
	b.successCountInHalfOpen = 0
}

func (b *Breaker) close() {
	b.state = Closed
	b.failureCount = 0
	b.successCountInHalfOpen = 0
	b.lastFailureTime = nil
}

func (b *Breaker) shouldAttemptReset() bool {
	if b.lastFailureTime == nil {
		return true
	}
	return b.clock().Sub(*b.lastFailureTime) >= b.resetTimeout
}

// Registry keeps one Breaker per handler name, created lazily on first use.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMaxCalls int
}

// NewRegistry builds a Registry that constructs breakers with the given
// defaults on first access.
func NewRegistry(failureThreshold int, resetTimeout time.Duration, halfOpenMaxCalls int) *Registry {
	return &Registry{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
	}
}

// Get returns the breaker for name, creating it if this is the first call.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.failureThreshold, r.resetTimeout, r.halfOpenMaxCalls)
	r.breakers[name] = b
	return b
}
