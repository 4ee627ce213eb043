package session

import (
	"sync"
	"time"

	"github.com/bookline-ai/gatekeeper/internal/gate"
	"github.com/bookline-ai/gatekeeper/internal/ratelimit"
	"go.uber.org/zap"
)

// Config holds the per-session state parameters fixed at startup.
type Config struct {
	Limits ratelimit.Table
	// SoftConfirmTurnTTL is how many turn boundaries a pending soft
	// confirmation survives. 0 keeps it until session end.
	SoftConfirmTurnTTL int
	// IdleTimeout bounds a session's lifetime after its last activity.
	IdleTimeout time.Duration
}

// Manager creates, looks up, and expires sessions. Safe for concurrent use;
// the sessions it hands out are not (each is driven by its own conversation
// flow).
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates an empty manager.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// GetOrCreate returns the session for id, creating it with zeroed counters
// on first sight. Every access refreshes the idle clock.
func (m *Manager) GetOrCreate(id, tenantID, agentType string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if s, ok := m.sessions[id]; ok {
		s.Touch(now)
		return s
	}

	s := &Session{
		ID:        id,
		TenantID:  tenantID,
		AgentType: agentType,
		CreatedAt: now,
		Limiter:   ratelimit.NewLimiter(m.cfg.Limits),
		Pending:   gate.NewRegister(m.cfg.SoftConfirmTurnTTL),
	}
	s.Touch(now)
	m.sessions[id] = s

	m.logger.Debug("session created",
		zap.String("session_id", id),
		zap.String("tenant_id", tenantID),
		zap.String("agent_type", agentType),
	)
	return s
}

// Get returns the session for id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Touch(m.now())
		return s
	}
	return nil
}

// End discards a session and its state. A new session with the same id
// starts every ceiling at zero.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	m.logger.Debug("session ended", zap.String("session_id", id))
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep discards sessions idle past the configured timeout and returns how
// many were dropped.
func (m *Manager) Sweep() int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	swept := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) > m.cfg.IdleTimeout {
			delete(m.sessions, id)
			swept++
		}
	}
	if swept > 0 {
		m.logger.Info("idle sessions swept", zap.Int("count", swept))
	}
	return swept
}

// StartJanitor runs Sweep on the given interval until stop is closed.
func (m *Manager) StartJanitor(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-stop:
				return
			}
		}
	}()
}
