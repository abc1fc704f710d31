package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func succeed(context.Context) error { return nil }
func fail(context.Context) error    { return errTest }

// fakeClock lets tests move time without sleeping
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newWithClock(cfg *Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := New(cfg)
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_ClosedState(t *testing.T) {
	cb := New(&Config{FailureThreshold: 3, Cooldown: time.Second})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := cb.Execute(ctx, succeed); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, fail)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state to remain closed, got: %v", cb.GetState())
	}

	// Success resets the consecutive count
	_ = cb.Execute(ctx, succeed)
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, fail)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state to remain closed after reset, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	var stateChanges []string
	cb, clock := newWithClock(&Config{
		FailureThreshold: 3,
		Cooldown:         100 * time.Millisecond,
		OnStateChange: func(from, to State) {
			stateChanges = append(stateChanges, fmt.Sprintf("%s->%s", from, to))
		},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errTest) {
			t.Fatalf("Expected the operation error, got: %v", err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected state to be open, got: %v", cb.GetState())
	}

	calls := 0
	err := cb.Execute(ctx, func(context.Context) error { calls++; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got: %v", err)
	}
	if calls != 0 {
		t.Errorf("Operation must not run while open, ran %d times", calls)
	}
	if cb.RetryIn() <= 0 {
		t.Errorf("Expected a positive remaining cooldown")
	}

	clock.Advance(150 * time.Millisecond)

	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("Expected trial call to succeed, got: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state to be closed after successful trial, got: %v", cb.GetState())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if fmt.Sprint(stateChanges) != fmt.Sprint(want) {
		t.Errorf("Expected transitions %v, got %v", want, stateChanges)
	}
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	cb, clock := newWithClock(&Config{FailureThreshold: 1, Cooldown: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Second)

	if err := cb.Execute(ctx, fail); !errors.Is(err, errTest) {
		t.Fatalf("Expected trial to run and fail, got: %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected state to be open after failed trial, got: %v", cb.GetState())
	}

	// Cooldown restarts from the trial failure
	clock.Advance(500 * time.Millisecond)
	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen during restarted cooldown, got: %v", err)
	}
}

func TestCircuitBreaker_SingleHalfOpenTrial(t *testing.T) {
	cb, clock := newWithClock(&Config{FailureThreshold: 1, Cooldown: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var trials, rejected atomic.Int32

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(ctx, func(context.Context) error {
			trials.Add(1)
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cb.Execute(ctx, func(context.Context) error {
				trials.Add(1)
				return nil
			})
			if errors.Is(err, ErrCircuitOpen) {
				rejected.Add(1)
			}
		}()
	}

	// Wait for the racing callers before releasing the trial
	deadline := time.Now().Add(2 * time.Second)
	for rejected.Load() < 20 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if trials.Load() != 1 {
		t.Errorf("Expected exactly one trial call, got %d", trials.Load())
	}
	if rejected.Load() != 20 {
		t.Errorf("Expected 20 rejected calls, got %d", rejected.Load())
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after trial, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	errIgnored := errors.New("not found")
	cb := New(&Config{
		FailureThreshold: 2,
		Cooldown:         time.Second,
		IsFailure:        func(err error) bool { return !errors.Is(err, errIgnored) },
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return errIgnored })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Ignored errors must not open the circuit, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_ConcurrentFailures(t *testing.T) {
	cb := New(&Config{FailureThreshold: 10, Cooldown: time.Minute})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(ctx, fail)
		}()
	}
	wg.Wait()

	if cb.GetState() != StateOpen {
		t.Errorf("Expected open after concurrent failures, got %v", cb.GetState())
	}
	stats := cb.GetStats()
	if stats.TotalRequests+stats.TotalRejected != 50 {
		t.Errorf("Expected 50 accounted calls, got %+v", stats)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := New(&Config{FailureThreshold: 1, Cooldown: time.Hour})
	_ = cb.Execute(context.Background(), fail)

	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after reset, got %v", cb.GetState())
	}
	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Errorf("Expected call to pass after reset, got %v", err)
	}
}
