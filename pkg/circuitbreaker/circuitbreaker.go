package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling the protected function while the
// breaker is open or its half-open probe budget is spent.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // Normal operation, requests pass through
	StateOpen                  // Circuit is open, requests fail immediately
	StateHalfOpen              // Testing if service recovered, limited requests allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold    int           // Consecutive failures before opening circuit
	SuccessThreshold    int           // Successes in half-open state to close circuit
	Timeout             time.Duration // Time to wait before transitioning from open to half-open
	MaxRequestsHalfOpen int           // Max requests allowed in half-open state

	// IsFailure reports whether err counts against the breaker. Errors that
	// prove the remote side is alive (a well-formed "not found") should not.
	// nil counts every error.
	IsFailure func(error) bool
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 3,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	config Config

	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	halfOpenRequests int
	lastFailureTime  time.Time
	stateChangeTime  time.Time

	onStateChange func(from, to State)
	now           func() time.Time
}

// New creates a new circuit breaker with the given configuration
func New(config Config) *CircuitBreaker {
	if config.MaxRequestsHalfOpen <= 0 {
		config.MaxRequestsHalfOpen = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		stateChangeTime: time.Now(),
		now:             time.Now,
	}
}

// OnStateChange sets a callback that is invoked synchronously, outside the
// breaker's lock, after every state transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn through the breaker. fn's error is returned unchanged so
// callers can keep classifying it.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.allowRequest() {
		return ErrOpen
	}

	err := fn()
	if err != nil && (cb.config.IsFailure == nil || cb.config.IsFailure(err)) {
		cb.onFailure()
		return err
	}

	cb.onSuccess()
	return err
}

// ExecuteWithResult is Execute for functions that produce a value.
func ExecuteWithResult[T any](ctx context.Context, cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var result T
	err := cb.Execute(ctx, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// allowRequest checks if a request should be allowed based on current state
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.stateChangeTime) < cb.config.Timeout {
			return false
		}
		transition = cb.transitionTo(StateHalfOpen)
		cb.halfOpenRequests++
		return true
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxRequestsHalfOpen {
			return false
		}
		cb.halfOpenRequests++
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	cb.failureCount++
	cb.successCount = 0
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			transition = cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		transition = cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	cb.successCount++
	cb.failureCount = 0

	if cb.state == StateHalfOpen && cb.successCount >= cb.config.SuccessThreshold {
		transition = cb.transitionTo(StateClosed)
	}
}

// transitionTo must be called with mu held. It returns the callback to run
// once the lock is released, or nil.
func (cb *CircuitBreaker) transitionTo(newState State) func() {
	if cb.state == newState {
		return nil
	}

	oldState := cb.state
	cb.state = newState
	cb.stateChangeTime = cb.now()
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenRequests = 0

	if cb.onStateChange == nil {
		return nil
	}
	fn := cb.onStateChange
	return func() { fn(oldState, newState) }
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats holds circuit breaker statistics
type Stats struct {
	State            State
	FailureCount     int
	SuccessCount     int
	HalfOpenRequests int
	LastFailureTime  time.Time
	StateChangeTime  time.Time
}

// GetStats returns current circuit breaker statistics
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:            cb.state,
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		HalfOpenRequests: cb.halfOpenRequests,
		LastFailureTime:  cb.lastFailureTime,
		StateChangeTime:  cb.stateChangeTime,
	}
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	transition := cb.transitionTo(StateClosed)
	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
}
