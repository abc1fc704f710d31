// Package retry provides retry with exponential backoff and jitter
package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	mcperrors "productboard-mcp/internal/errors"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts     int              // Total invocations including the first one
	InitialDelay    time.Duration    // Delay before the first retry
	MaxDelay        time.Duration    // Cap applied before jitter
	Multiplier      float64          // Backoff factor
	RandomizeFactor float64          // Extra random delay as a fraction of the computed delay (0-1)
	RetryIf         func(error) bool // Decides whether an error is retryable

	// RetryAfter extracts a wait demanded by the failure itself. When it
	// reports true the returned duration replaces the computed backoff.
	RetryAfter func(error) (time.Duration, bool)

	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns the upstream retry policy
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.3,
		RetryIf:         mcperrors.IsRetryable,
		RetryAfter:      mcperrors.RetryAfter,
	}
}

// Operation represents a retryable operation
type Operation func(ctx context.Context) error

// Result contains the outcome of a retried operation
type Result struct {
	Attempts int
	Duration time.Duration
	Err      error
}

// Retrier runs operations under a Config
type Retrier struct {
	config *Config

	randMu sync.Mutex
	rand   *rand.Rand

	// sleep waits for d or until ctx is done
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new retrier, filling unset fields from DefaultConfig
func New(config *Config) *Retrier {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	c := *config
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = def.Multiplier
	} else if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.RandomizeFactor < 0 {
		c.RandomizeFactor = 0
	} else if c.RandomizeFactor > 1 {
		c.RandomizeFactor = 1
	}
	if c.RetryIf == nil {
		c.RetryIf = def.RetryIf
	}
	if c.RetryAfter == nil {
		c.RetryAfter = def.RetryAfter
	}
	return &Retrier{
		config: &c,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter only
		sleep:  sleepContext,
	}
}

// Config returns a copy of the effective configuration
func (r *Retrier) Config() Config {
	return *r.config
}

// Do executes op until it succeeds, fails with a non-retryable error, or
// MaxAttempts invocations have been made. On exhaustion Result.Err is the
// last error returned by op, unchanged.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	start := time.Now()
	result := &Result{}

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := op(ctx)
		if err == nil {
			result.Err = nil
			result.Duration = time.Since(start)
			return result
		}
		result.Err = err

		if !r.config.RetryIf(err) || attempt == r.config.MaxAttempts {
			break
		}

		delay := r.delayFor(attempt, err)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		if serr := r.sleep(ctx, delay); serr != nil {
			result.Err = serr
			break
		}
	}

	result.Duration = time.Since(start)
	return result
}

// Execute runs op through r and returns its value
func Execute[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var value T
	res := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if res.Err != nil {
		var zero T
		return zero, res.Err
	}
	return value, nil
}

// Backoff returns the capped exponential delay before retry number
// attempt (1-based), without jitter.
func (r *Retrier) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) || math.IsInf(d, 0) {
		return r.config.MaxDelay
	}
	return time.Duration(d)
}

func (r *Retrier) delayFor(attempt int, err error) time.Duration {
	if d, ok := r.config.RetryAfter(err); ok {
		return d
	}
	return r.withJitter(r.Backoff(attempt))
}

// withJitter adds up to RandomizeFactor of extra delay
func (r *Retrier) withJitter(d time.Duration) time.Duration {
	if r.config.RandomizeFactor == 0 || d <= 0 {
		return d
	}
	r.randMu.Lock()
	f := r.rand.Float64()
	r.randMu.Unlock()
	return d + time.Duration(f*r.config.RandomizeFactor*float64(d))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
