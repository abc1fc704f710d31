package ratelimit

import (
	"context"
	"sync"
	"time"

	mcperrors "productboard-mcp/internal/errors"
)

// SlidingWindow implements an in-memory sliding window rate limiter
type SlidingWindow struct {
	mu      sync.RWMutex
	windows map[string]*Window
	config  *Config
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// Window represents a sliding window for rate limiting
type Window struct {
	mu        sync.Mutex
	requests  []time.Time
	limit     int
	window    time.Duration
	burst     int
	lastClean time.Time
}

// LimitResult is the outcome of one check
type LimitResult struct {
	Allowed    bool          `json:"allowed"`
	Key        string        `json:"key"`
	Count      int           `json:"count"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after"`
	ResetTime  time.Time     `json:"reset_time"`
}

// WindowStats represents statistics for a sliding window
type WindowStats struct {
	Key          string        `json:"key"`
	RequestCount int           `json:"request_count"`
	Limit        int           `json:"limit"`
	Window       time.Duration `json:"window"`
	Burst        int           `json:"burst"`
	RequestRate  float64       `json:"request_rate"` // requests per second
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(config *Config) *SlidingWindow {
	if config == nil {
		config = DefaultConfig()
	}
	return &SlidingWindow{
		windows: make(map[string]*Window),
		config:  config,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Start runs periodic cleanup until ctx is done or Close is called
func (sw *SlidingWindow) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sw.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sw.performCleanup()
			case <-ctx.Done():
				return
			case <-sw.done:
				return
			}
		}
	}()
}

// Allow records a request for key when the budget permits. A denied request
// returns a *errors.RateLimitError carrying the time until a slot frees up.
func (sw *SlidingWindow) Allow(ctx context.Context, key string) error {
	if sw.config.Disabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	result := sw.Check(key)
	if result.Allowed {
		return nil
	}
	return &mcperrors.RateLimitError{Key: key, RetryAfter: result.RetryAfter}
}

// Check performs a rate limit check using sliding window algorithm
func (sw *SlidingWindow) Check(key string) *LimitResult {
	now := sw.now()

	sw.mu.Lock()
	window, exists := sw.windows[key]
	if !exists {
		limit := sw.config.LimitFor(key)
		window = &Window{
			requests:  make([]time.Time, 0, limit.Limit+limit.Burst),
			limit:     limit.Limit,
			window:    limit.Window,
			burst:     limit.Burst,
			lastClean: now,
		}
		sw.windows[key] = window
	}
	sw.mu.Unlock()

	return sw.checkWindow(window, key, now)
}

// checkWindow performs the actual sliding window check
func (sw *SlidingWindow) checkWindow(window *Window, key string, now time.Time) *LimitResult {
	window.mu.Lock()
	defer window.mu.Unlock()

	cleanExpiredRequests(window, now)
	window.lastClean = now

	currentCount := len(window.requests)
	allowed := currentCount < window.limit+window.burst

	var retryAfter time.Duration
	var resetTime time.Time

	if allowed {
		window.requests = append(window.requests, now)
		currentCount++
		resetTime = window.requests[0].Add(window.window)
	} else {
		resetTime = window.requests[0].Add(window.window)
		retryAfter = resetTime.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
	}

	remaining := window.limit - currentCount
	if remaining < 0 {
		remaining = 0
	}

	return &LimitResult{
		Allowed:    allowed,
		Key:        key,
		Count:      currentCount,
		Limit:      window.limit,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		ResetTime:  resetTime,
	}
}

// Reset resets the sliding window for a given key
func (sw *SlidingWindow) Reset(key string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if window, exists := sw.windows[key]; exists {
		window.mu.Lock()
		window.requests = window.requests[:0]
		window.mu.Unlock()
	}
}

// GetStats returns current statistics for a key
func (sw *SlidingWindow) GetStats(key string) (WindowStats, bool) {
	sw.mu.RLock()
	window, exists := sw.windows[key]
	sw.mu.RUnlock()

	if !exists {
		return WindowStats{Key: key}, false
	}
	return sw.windowStats(window, key), true
}

// GetAllStats returns statistics for all windows
func (sw *SlidingWindow) GetAllStats() []WindowStats {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	stats := make([]WindowStats, 0, len(sw.windows))
	for key, window := range sw.windows {
		stats = append(stats, sw.windowStats(window, key))
	}
	return stats
}

func (sw *SlidingWindow) windowStats(window *Window, key string) WindowStats {
	window.mu.Lock()
	defer window.mu.Unlock()

	cleanExpiredRequests(window, sw.now())

	var requestRate float64
	if window.window > 0 {
		requestRate = float64(len(window.requests)) / window.window.Seconds()
	}

	return WindowStats{
		Key:          key,
		RequestCount: len(window.requests),
		Limit:        window.limit,
		Window:       window.window,
		Burst:        window.burst,
		RequestRate:  requestRate,
	}
}

// performCleanup removes expired requests and idle windows
func (sw *SlidingWindow) performCleanup() {
	now := sw.now()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	for key, window := range sw.windows {
		window.mu.Lock()
		cleanExpiredRequests(window, now)
		idle := len(window.requests) == 0 && now.Sub(window.lastClean) > window.window*2
		window.mu.Unlock()

		if idle {
			delete(sw.windows, key)
		}
	}
}

// cleanExpiredRequests removes requests outside the window. Requests are
// appended in time order so the expired ones form a prefix.
func cleanExpiredRequests(window *Window, now time.Time) {
	windowStart := now.Add(-window.window)

	validStart := len(window.requests)
	for i, reqTime := range window.requests {
		if reqTime.After(windowStart) {
			validStart = i
			break
		}
	}

	if validStart > 0 {
		n := copy(window.requests, window.requests[validStart:])
		window.requests = window.requests[:n]
	}
}

// Close stops the cleanup routine
func (sw *SlidingWindow) Close() error {
	sw.once.Do(func() { close(sw.done) })
	return nil
}

// WindowCount returns the number of active windows
func (sw *SlidingWindow) WindowCount() int {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return len(sw.windows)
}
