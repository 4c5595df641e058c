package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ocrchat/internal/logger"
	"ocrchat/internal/models"
	"ocrchat/internal/preview"
)

const (
	DefaultSessionIdleTTL       = 2 * time.Hour
	DefaultSessionSweepInterval = 10 * time.Minute
)

// Session bundles the state cells, conversation log, and orchestrator
// for one chat session.
type Session struct {
	Meta  models.Session
	State *State
	Log   *Log
	Orc   *Orchestrator

	lastActive time.Time
}

// Close releases every resource the session still owns. Safe to call
// more than once.
func (s *Session) Close() {
	s.State.Shutdown()
}

// Manager owns the live sessions and reclaims idle ones.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	previews  *preview.Registry
	extractor Extractor
	idleTTL   time.Duration
}

func NewManager(previews *preview.Registry, extractor Extractor, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultSessionIdleTTL
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		previews:  previews,
		extractor: extractor,
		idleTTL:   idleTTL,
	}
}

// Create starts a new empty session.
func (m *Manager) Create() *Session {
	now := time.Now().UTC()
	id := uuid.NewString()
	state := NewState(id, m.previews)
	log := NewLog()
	sess := &Session{
		Meta:       models.Session{ID: id, CreatedAt: now, LastActive: now},
		State:      state,
		Log:        log,
		Orc:        NewOrchestrator(state, log, m.extractor),
		lastActive: now,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return sess
}

// Get returns the session and marks it active.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastActive = time.Now().UTC()
	sess.Meta.LastActive = sess.lastActive
	return sess, true
}

// Close tears down the session and releases its resources.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	sess.Close()
	return true
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start launches the idle-session sweeper.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSessionSweepInterval
	}
	go m.sweepLoop(ctx, interval)
}

func (m *Manager) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	cutoff := time.Now().UTC().Add(-m.idleTTL)

	m.mu.Lock()
	var expired []*Session
	for id, sess := range m.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
		logger.WithFields(logrus.Fields{"session_id": sess.Meta.ID}).Info("idle session reclaimed")
	}
}
