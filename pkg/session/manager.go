package session

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobtrail/jobtrail/internal/errors"
)

// Manager owns the live sessions and closes the idle ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	deps   Deps
	config ManagerConfig
	logger *slog.Logger
	newID  func() string

	// Lifecycle
	done    chan struct{}
	stopped bool
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// IdleTimeout closes sessions that have not been touched for this long.
	// Zero disables idle expiry. Default: 30 minutes.
	IdleTimeout time.Duration

	// CleanupInterval is how often idle sessions are looked for.
	// Default: 1 minute.
	CleanupInterval time.Duration

	// MaxSessions caps live sessions; Create fails beyond it. Zero means
	// no limit.
	MaxSessions int
}

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		IdleTimeout:     30 * time.Minute,
		CleanupInterval: 1 * time.Minute,
	}
}

// NewManager creates a manager that builds sessions from deps and starts
// its cleanup loop. Call Shutdown to stop it.
func NewManager(deps Deps, config ManagerConfig) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultManagerConfig().CleanupInterval
	}

	m := &Manager{
		sessions: make(map[string]*Session),
		deps:     deps,
		config:   config,
		logger:   logger.With("component", "session_manager"),
		newID:    uuid.NewString,
		done:     make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// Create builds and registers a session for a page at path.
func (m *Manager) Create(path string, query url.Values) (*Session, error) {
	id := m.newID()
	sess := New(id, path, query, m.deps)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		sess.Close()
		return nil, errors.New("J020").WithDetail("the session manager is shut down")
	}
	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		m.mu.Unlock()
		sess.Close()
		return nil, errors.New("J020").WithDetail("session limit reached")
	}
	m.sessions[id] = sess
	count := len(m.sessions)
	m.mu.Unlock()

	m.deps.Metrics.RecordSessionOpen()
	m.logger.Debug("session created", "session_id", id, "path", path, "total", count)
	return sess, nil
}

// Get returns the session with id and records activity on it.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.New("J020").WithDetail("no session " + id)
	}
	sess.Touch()
	return sess, nil
}

// Remove closes and forgets the session with id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.closeSession(sess, "removed")
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) closeSession(sess *Session, reason string) {
	sess.Close()
	m.deps.Metrics.RecordSessionClose()
	m.logger.Debug("session closed", "session_id", sess.ID(), "reason", reason)
}

// cleanupLoop periodically closes idle sessions.
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired(time.Now())
		case <-m.done:
			return
		}
	}
}

// cleanupExpired closes sessions idle for longer than IdleTimeout.
func (m *Manager) cleanupExpired(now time.Time) {
	if m.config.IdleTimeout <= 0 {
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	var expired []*Session
	for id, sess := range m.sessions {
		if now.Sub(sess.LastSeen()) > m.config.IdleTimeout {
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, sess := range expired {
		m.closeSession(sess, "idle")
	}
	if len(expired) > 0 {
		m.logger.Debug("cleaned up idle sessions",
			"count", len(expired),
			"remaining", remaining)
	}
}

// Shutdown stops the cleanup loop and closes every session. Every session
// is closed even when ctx is already done; ctx's error is then returned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.done)

	all := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range all {
		m.closeSession(sess, "shutdown")
	}
	if len(all) > 0 {
		m.logger.Info("closed sessions on shutdown", "count", len(all))
	}
	return ctx.Err()
}

// Stats returns manager statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ManagerStats{Total: len(m.sessions)}
	for _, sess := range m.sessions {
		stats.Drafts += sess.Drafts().Len()
	}
	return stats
}

// ManagerStats contains session manager statistics.
type ManagerStats struct {
	// Total is the number of live sessions.
	Total int `json:"total"`

	// Drafts is the number of drafts held across all sessions.
	Drafts int `json:"drafts"`
}
