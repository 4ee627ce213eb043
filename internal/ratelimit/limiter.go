// Package ratelimit enforces per-tool call ceilings over two lifetimes:
// the current conversational turn and the whole session.
package ratelimit

import "fmt"

// Spec is the call budget for a single tool.
type Spec struct {
	MaxPerTurn    int `json:"max_per_turn"`
	MaxPerSession int `json:"max_per_session"`
}

// Table maps tool names to specs with an explicit default fallback.
// Tools without an entry are governed by Default — never rejected outright.
type Table struct {
	Default Spec
	Tools   map[string]Spec
}

// SpecFor returns the spec for a tool, falling back to the default.
func (t Table) SpecFor(tool string) Spec {
	if s, ok := t.Tools[tool]; ok {
		return s
	}
	return t.Default
}

// Decision is the outcome of a CanCall probe.
type Decision struct {
	Allowed bool
	Reason  string
}

// Limiter tracks per-tool call counts for one session. Turn counts are
// cleared at every turn boundary; session counts only by a full Reset.
//
// A Limiter is owned by exactly one session and driven from that session's
// single turn-processing flow, so it is not safe for concurrent use and
// does not lock.
type Limiter struct {
	table         Table
	turnCounts    map[string]int
	sessionCounts map[string]int
}

// NewLimiter creates a limiter with empty counters.
func NewLimiter(table Table) *Limiter {
	return &Limiter{
		table:         table,
		turnCounts:    make(map[string]int),
		sessionCounts: make(map[string]int),
	}
}

// CanCall reports whether the tool has budget left in both the current turn
// and the session. It does not consume budget — callers that go on to invoke
// the tool must follow up with RecordCall. The split lets callers probe
// without committing (dry-run previews).
func (l *Limiter) CanCall(tool string) Decision {
	return l.CanCallSpec(tool, l.table.SpecFor(tool))
}

// CanCallSpec is CanCall evaluated against an explicit spec, used when a
// resolved policy overrides the limiter's own table.
func (l *Limiter) CanCallSpec(tool string, spec Spec) Decision {
	if l.turnCounts[tool] >= spec.MaxPerTurn {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("tool %q reached max per turn (%d)", tool, spec.MaxPerTurn),
		}
	}
	if l.sessionCounts[tool] >= spec.MaxPerSession {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("tool %q reached max per session (%d)", tool, spec.MaxPerSession),
		}
	}
	return Decision{Allowed: true}
}

// RecordCall charges one call against both counters. No admissibility check
// is performed here.
func (l *Limiter) RecordCall(tool string) {
	l.turnCounts[tool]++
	l.sessionCounts[tool]++
}

// ResetTurn clears the per-turn counters for all tools. Session counters are
// untouched — this is what makes a turn-exhausted tool callable again in a
// later turn.
func (l *Limiter) ResetTurn() {
	clear(l.turnCounts)
}

// Reset clears both counters. Only used at session teardown or recreation,
// never mid-conversation.
func (l *Limiter) Reset() {
	clear(l.turnCounts)
	clear(l.sessionCounts)
}

// Stats is a point-in-time snapshot of both counter maps.
type Stats struct {
	Turn    map[string]int `json:"turn"`
	Session map[string]int `json:"session"`
}

// Stats returns copies of the current counters.
func (l *Limiter) Stats() Stats {
	turn := make(map[string]int, len(l.turnCounts))
	for k, v := range l.turnCounts {
		turn[k] = v
	}
	session := make(map[string]int, len(l.sessionCounts))
	for k, v := range l.sessionCounts {
		session[k] = v
	}
	return Stats{Turn: turn, Session: session}
}
