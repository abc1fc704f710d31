// Package session tracks per-connection state and evicts idle sessions.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"productboard-mcp/internal/logging"
)

const (
	DefaultIdleTimeout   = 300 * time.Second
	DefaultSweepInterval = 60 * time.Second
)

// Session holds the state owned by one client connection
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`

	mu           sync.Mutex
	lastActivity time.Time
	requestCount int64
	configCache  map[string]interface{}
	inFlight     map[string]struct{}
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActivity: now,
		configCache:  make(map[string]interface{}),
		inFlight:     make(map[string]struct{}),
	}
}

// LastActivity returns the last time the session was used
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// CachedConfig returns a previously cached resolved configuration
func (s *Session) CachedConfig(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.configCache[key]
	return v, ok
}

// SetCachedConfig caches a resolved configuration for the session's lifetime
func (s *Session) SetCachedConfig(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configCache != nil {
		s.configCache[key] = value
	}
}

// BeginRequest marks a request as in flight and counts it
func (s *Session) BeginRequest(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCount++
	if s.inFlight != nil {
		s.inFlight[requestID] = struct{}{}
	}
}

// EndRequest clears an in-flight marker
func (s *Session) EndRequest(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, requestID)
}

// InFlight returns the sorted IDs of requests still running
func (s *Session) InFlight() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.inFlight))
	for id := range s.inFlight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RequestCount returns how many requests the session has served
func (s *Session) RequestCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount
}

// clear drops cached state on teardown
func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configCache = nil
	s.inFlight = nil
}

// Config configures a Manager
type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	// OnRemove is called after a session is removed, for any reason
	OnRemove func(id string)
}

// Manager owns all sessions
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex

	config Config
	logger logging.Logger
	now    func() time.Time

	startOnce sync.Once
	started   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewManager creates a session manager. Call Start to enable the idle sweep.
func NewManager(cfg Config, logger logging.Logger) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		config:   cfg,
		logger:   logger.WithComponent("session"),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// GenerateID returns a new session identifier: creation time plus a random suffix
func GenerateID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix)
}

// CreateSession registers a session under id, generating one when empty.
// An existing session with the same id is returned unchanged.
func (m *Manager) CreateSession(id string) *Session {
	now := m.now()
	if id == "" {
		id = GenerateID(now)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.touch(now)
		return s
	}
	s := newSession(id, now)
	m.sessions[id] = s

	m.logger.Debug("session created", "session_id", id, "active", len(m.sessions))
	return s
}

// GetSession returns a session and refreshes its activity time. The
// refresh happens under the manager lock so a concurrent sweep sees it.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	s.touch(m.now())
	return s, true
}

// GetOrCreate returns the session for id, creating it on first use
func (m *Manager) GetOrCreate(id string) *Session {
	if s, ok := m.GetSession(id); ok {
		return s
	}
	return m.CreateSession(id)
}

// RemoveSession deletes a session. Removing an unknown id is a no-op.
func (m *Manager) RemoveSession(id string) {
	m.removeIf(id, nil)
}

// removeIf deletes the session when evict is nil or reports true under
// the write lock, then tears it down.
func (m *Manager) removeIf(id string, evict func(*Session) bool) bool {
	m.mutex.Lock()
	s, ok := m.sessions[id]
	if ok && evict != nil && !evict(s) {
		ok = false
	}
	if ok {
		delete(m.sessions, id)
	}
	m.mutex.Unlock()

	if !ok {
		return false
	}
	s.clear()
	m.logger.Debug("session removed", "session_id", id)
	if m.config.OnRemove != nil {
		m.config.OnRemove(id)
	}
	return true
}

// ActiveSessionCount returns the number of live sessions
func (m *Manager) ActiveSessionCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle longer than the timeout and returns how many
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.config.IdleTimeout)

	m.mutex.RLock()
	var candidates []string
	for id, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			candidates = append(candidates, id)
		}
	}
	m.mutex.RUnlock()

	evicted := 0
	for _, id := range candidates {
		if m.evictIfIdle(id, cutoff) {
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Info("expired idle sessions", "count", evicted, "active", m.ActiveSessionCount())
	}
	return evicted
}

// evictIfIdle removes id only if it is still idle past cutoff
func (m *Manager) evictIfIdle(id string, cutoff time.Time) bool {
	return m.removeIf(id, func(s *Session) bool {
		return s.LastActivity().Before(cutoff)
	})
}

// Start runs the idle sweep until ctx is done or Stop is called. Only the
// first call starts a sweeper.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.started.Store(true)
		go m.sweepLoop(ctx)
	})
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		}
	}
}

// Stop halts the sweep started by Start and waits for it to exit. It
// returns immediately when the sweep was never started.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	if !m.started.Load() {
		return
	}
	<-m.done
}

// Stats summarizes the manager for status reporting
type Stats struct {
	ActiveSessions int           `json:"active_sessions"`
	TotalRequests  int64         `json:"total_requests"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
}

// GetStats returns aggregate statistics
func (m *Manager) GetStats() Stats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := Stats{ActiveSessions: len(m.sessions), IdleTimeout: m.config.IdleTimeout}
	for _, s := range m.sessions {
		stats.TotalRequests += s.RequestCount()
	}
	return stats
}
