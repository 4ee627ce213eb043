// Package session owns the per-conversation state: tool call counters and
// pending confirmations, created when a conversation begins and discarded
// when it ends or idles out.
package session

import (
	"time"

	"github.com/bookline-ai/gatekeeper/internal/gate"
	"github.com/bookline-ai/gatekeeper/internal/ratelimit"
)

// Session is one conversation's exclusively-owned gateway state. Nothing in
// it is shared across sessions, and a conversation processes one model turn
// at a time, so the session itself does not lock.
type Session struct {
	ID        string
	TenantID  string
	AgentType string
	CreatedAt time.Time

	Limiter *ratelimit.Limiter
	Pending *gate.Register

	lastSeen time.Time
}

// BeginTurn marks a turn boundary: per-turn counters reset and pending
// confirmations age by one turn.
func (s *Session) BeginTurn() {
	s.Limiter.ResetTurn()
	s.Pending.Tick()
}

// Reset clears all counters and pendings. Teardown/recreation only.
func (s *Session) Reset() {
	s.Limiter.Reset()
	s.Pending.Clear()
}

// Touch records activity for idle-timeout accounting.
func (s *Session) Touch(now time.Time) {
	s.lastSeen = now
}
