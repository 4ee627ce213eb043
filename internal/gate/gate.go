// Package gate decides whether a tool call may execute now or must wait for
// a confirmation, based on the tool's trust tier and the session's pending
// confirmation state.
package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/bookline-ai/gatekeeper/internal/tiers"
)

// DecisionKind enumerates the gate's possible outcomes.
type DecisionKind int

const (
	DecisionUnspecified DecisionKind = iota
	// DecisionExecute: run the tool now (rate limits still apply separately).
	DecisionExecute
	// DecisionSoftConfirm: hold the call; the caller should relay the hint
	// and re-attempt next turn with the confirmed flag set.
	DecisionSoftConfirm
	// DecisionHardConfirm: hold the call until the human supplies the token
	// phrase out of band; the caller forwards that as a verified flag.
	DecisionHardConfirm
	// DecisionBlocked: the tool carries no tier assignment for this agent
	// type. A deployment defect, not a normal denial.
	DecisionBlocked
)

// String returns the lowercase decision name.
func (k DecisionKind) String() string {
	switch k {
	case DecisionExecute:
		return "execute"
	case DecisionSoftConfirm:
		return "soft_confirm"
	case DecisionHardConfirm:
		return "hard_confirm"
	case DecisionBlocked:
		return "blocked"
	default:
		return "unspecified"
	}
}

// Decision is the gate's verdict for one tool-call attempt.
type Decision struct {
	Kind        DecisionKind
	Hint        string // soft confirm: what the caller should relay to the model
	TokenPhrase string // hard confirm: the phrase the human must supply
	Reason      string // blocked: why
}

// Blocked builds the decision for a tool with no tier assignment.
func Blocked(agentType, tool string) Decision {
	return Decision{
		Kind:   DecisionBlocked,
		Reason: fmt.Sprintf("tool %q has no trust tier for agent type %q", tool, agentType),
	}
}

// Pending is a recorded, not-yet-confirmed mutation request.
type Pending struct {
	Digest      string
	RequestedAt time.Time
	turnsLeft   int
}

// Register holds a session's pending confirmations, one slot per tool.
// Each slot is a small state machine: none → pending(digest) → cleared on
// matching confirmation, replaced on digest change, or expired after the
// configured number of turn boundaries.
//
// Owned by one session and driven from its single turn-processing flow;
// not safe for concurrent use.
type Register struct {
	pending map[string]*Pending
	turnTTL int // 0 = pending until session end
	now     func() time.Time
}

// NewRegister creates a register. turnTTL is the number of turn boundaries a
// pending confirmation survives before it silently expires; 0 keeps it for
// the whole session.
func NewRegister(turnTTL int) *Register {
	return &Register{
		pending: make(map[string]*Pending),
		turnTTL: turnTTL,
		now:     time.Now,
	}
}

// Tick advances the register across a turn boundary, expiring pendings whose
// turn budget is spent.
func (r *Register) Tick() {
	if r.turnTTL <= 0 {
		return
	}
	for tool, p := range r.pending {
		p.turnsLeft--
		if p.turnsLeft <= 0 {
			delete(r.pending, tool)
		}
	}
}

// Clear drops all pending confirmations. Session teardown only.
func (r *Register) Clear() {
	clear(r.pending)
}

// Get returns the pending confirmation for a tool, or nil.
func (r *Register) Get(tool string) *Pending {
	return r.pending[tool]
}

func (r *Register) put(tool, digest string) {
	r.pending[tool] = &Pending{
		Digest:      digest,
		RequestedAt: r.now(),
		turnsLeft:   r.turnTTL,
	}
}

// Evaluate applies the tier policy to one call attempt.
//
//   - TierRead always executes.
//   - TierWrite executes only when the caller confirms a pending request
//     with the same arguments digest; any other attempt (first sight, changed
//     digest, expired pending) records a fresh pending and asks for a soft
//     confirmation. Last call wins — a stale unconfirmed mutation is never
//     silently executed.
//   - TierDestructive executes only on an explicitly confirmed attempt; it
//     never escalates from a soft confirmation.
func (r *Register) Evaluate(tier tiers.Tier, tool, digest string, confirmed bool) Decision {
	switch tier {
	case tiers.TierRead:
		return Decision{Kind: DecisionExecute}

	case tiers.TierWrite:
		if p := r.pending[tool]; confirmed && p != nil && p.Digest == digest {
			delete(r.pending, tool)
			return Decision{Kind: DecisionExecute}
		}
		r.put(tool, digest)
		return Decision{
			Kind: DecisionSoftConfirm,
			Hint: fmt.Sprintf("tool %q mutates state; re-attempt with confirmation to proceed", tool),
		}

	case tiers.TierDestructive:
		if confirmed {
			delete(r.pending, tool)
			return Decision{Kind: DecisionExecute}
		}
		r.put(tool, digest)
		return Decision{
			Kind:        DecisionHardConfirm,
			TokenPhrase: hardConfirmPhrase(tool),
		}

	default:
		return Decision{
			Kind:   DecisionBlocked,
			Reason: fmt.Sprintf("tool %q has no usable trust tier", tool),
		}
	}
}

// hardConfirmPhrase derives the explicit phrase the human must type to
// release a destructive tool, e.g. "CONFIRM CREATE REFUND".
func hardConfirmPhrase(tool string) string {
	return "CONFIRM " + strings.ToUpper(strings.ReplaceAll(tool, "_", " "))
}
