// Package circuitbreaker provides circuit breaker pattern implementation
package circuitbreaker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// State represents the circuit breaker state
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// Cooldown is how long the circuit stays open before one trial call is let through
	Cooldown time.Duration
	// IsFailure decides whether an error counts against the circuit. Nil counts every error.
	IsFailure func(error) bool
	// OnStateChange is called when the circuit state changes
	OnStateChange func(from, to State)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern. All state lives
// in atomics so Execute is safe for concurrent use without a lock.
type CircuitBreaker struct {
	config *Config

	state           atomic.Int32
	failures        atomic.Int64
	lastFailureTime atomic.Int64 // unix nanos

	totalRequests  atomic.Int64
	totalFailures  atomic.Int64
	totalRejected  atomic.Int64
	totalSuccesses atomic.Int64

	now func() time.Time
}

var (
	// ErrCircuitOpen is returned when the circuit rejects a call
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// New creates a new circuit breaker
func New(config *Config) *CircuitBreaker {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	c := *config
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = def.Cooldown
	}
	return &CircuitBreaker{
		config: &c,
		now:    time.Now,
	}
}

// Execute runs fn if the circuit admits it and records the outcome.
// Rejected calls return ErrCircuitOpen without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := cb.admit()
	if err != nil {
		cb.totalRejected.Add(1)
		return err
	}
	cb.totalRequests.Add(1)

	err = fn(ctx)
	cb.record(err, trial)
	return err
}

// admit reports whether a call may run and whether it is the half-open trial
func (cb *CircuitBreaker) admit() (bool, error) {
	switch State(cb.state.Load()) {
	case StateClosed:
		return false, nil
	case StateOpen:
		if cb.now().Sub(time.Unix(0, cb.lastFailureTime.Load())) < cb.config.Cooldown {
			return false, ErrCircuitOpen
		}
		// Exactly one caller wins the transition and runs the trial
		if cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
			cb.notify(StateOpen, StateHalfOpen)
			return true, nil
		}
		return false, ErrCircuitOpen
	default:
		// Trial already in flight
		return false, ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) record(err error, trial bool) {
	failed := err != nil && (cb.config.IsFailure == nil || cb.config.IsFailure(err))

	if !failed {
		cb.totalSuccesses.Add(1)
		cb.failures.Store(0)
		if trial && cb.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
			cb.notify(StateHalfOpen, StateClosed)
		}
		return
	}

	cb.totalFailures.Add(1)
	cb.lastFailureTime.Store(cb.now().UnixNano())

	if trial {
		if cb.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
			cb.notify(StateHalfOpen, StateOpen)
		}
		return
	}

	if cb.failures.Add(1) >= int64(cb.config.FailureThreshold) &&
		cb.state.CompareAndSwap(int32(StateClosed), int32(StateOpen)) {
		cb.notify(StateClosed, StateOpen)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if to == StateClosed {
		cb.failures.Store(0)
	}
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	return State(cb.state.Load())
}

// RetryIn returns the remaining cooldown, zero unless the circuit is open
func (cb *CircuitBreaker) RetryIn() time.Duration {
	if cb.GetState() != StateOpen {
		return 0
	}
	remaining := cb.config.Cooldown - cb.now().Sub(time.Unix(0, cb.lastFailureTime.Load()))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stats holds circuit breaker statistics
type Stats struct {
	State               string `json:"state"`
	ConsecutiveFailures int64  `json:"consecutive_failures"`
	TotalRequests       int64  `json:"total_requests"`
	TotalSuccesses      int64  `json:"total_successes"`
	TotalFailures       int64  `json:"total_failures"`
	TotalRejected       int64  `json:"total_rejected"`
}

// GetStats returns current statistics
func (cb *CircuitBreaker) GetStats() Stats {
	return Stats{
		State:               cb.GetState().String(),
		ConsecutiveFailures: cb.failures.Load(),
		TotalRequests:       cb.totalRequests.Load(),
		TotalSuccesses:      cb.totalSuccesses.Load(),
		TotalFailures:       cb.totalFailures.Load(),
		TotalRejected:       cb.totalRejected.Load(),
	}
}

// Reset forces the circuit closed
func (cb *CircuitBreaker) Reset() {
	old := State(cb.state.Swap(int32(StateClosed)))
	cb.failures.Store(0)
	if old != StateClosed {
		cb.notify(old, StateClosed)
	}
}
