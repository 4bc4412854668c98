package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrOpen is returned by Call while the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker short-circuits calls to an upstream after repeated failures and
// lets trial calls through once the open timeout has elapsed.
type CircuitBreaker struct {
	mu               sync.Mutex
	clock            clockwork.Clock
	state            State
	failureCount     int
	successCount     int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	component        string
	onStateChange    func(from, to State)
}

// Config holds circuit breaker parameters. Zero values fall back to defaults.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Component        string
	OnStateChange    func(from, to State)
	Clock            clockwork.Clock // nil = real clock
}

// New creates a CircuitBreaker in the closed state.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &CircuitBreaker{
		clock:            cfg.Clock,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		component:        cfg.Component,
		onStateChange:    cfg.OnStateChange,
	}
}

// Call runs fn unless the circuit is open. An open circuit moves to half-open once
// the timeout has elapsed; a failure in half-open reopens it immediately.
// Context cancellation by the caller is not counted as an upstream failure.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	if err != nil && ctx.Err() != nil {
		return err
	}

	cb.mu.Lock()
	var from, to State
	changed := false
	if err != nil {
		cb.failureCount++
		cb.successCount = 0
		if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
			from, to, changed = cb.state, StateOpen, cb.state != StateOpen
			cb.state = StateOpen
			cb.openedAt = cb.clock.Now()
			cb.failureCount = 0
		}
	} else {
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.successThreshold {
				from, to, changed = cb.state, StateClosed, true
				cb.state = StateClosed
				cb.successCount = 0
			}
		}
	}
	cb.mu.Unlock()

	if changed {
		cb.notify(from, to)
	}
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	if cb.clock.Since(cb.openedAt) < cb.timeout {
		cb.mu.Unlock()
		return ErrOpen
	}
	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.mu.Unlock()
	cb.notify(StateOpen, StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

// State returns the current state (for metrics and health).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Component returns the name the breaker was configured with.
func (cb *CircuitBreaker) Component() string {
	return cb.component
}
