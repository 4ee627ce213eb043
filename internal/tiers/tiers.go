// Package tiers classifies tools by the risk of their side effects and maps
// each tier to the confirmation level required before execution.
package tiers

import (
	"errors"
	"fmt"
)

// Tier is a tool's trust classification within one agent's tool surface.
type Tier int

const (
	TierUnspecified Tier = iota
	// TierRead: read-only or idempotent tools, auto-executed (T1).
	TierRead
	// TierWrite: tools that mutate draft or non-final state; a lightweight
	// in-band confirmation is required on first sight of the call (T2).
	TierWrite
	// TierDestructive: costly, irreversible, or customer-money-affecting
	// tools; an explicit out-of-band confirmation phrase is required (T3).
	TierDestructive
)

// String returns the lowercase tier name.
func (t Tier) String() string {
	switch t {
	case TierRead:
		return "read"
	case TierWrite:
		return "write"
	case TierDestructive:
		return "destructive"
	default:
		return "unspecified"
	}
}

// ParseTier converts a stored tier string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "read":
		return TierRead, nil
	case "write":
		return TierWrite, nil
	case "destructive":
		return TierDestructive, nil
	default:
		return TierUnspecified, fmt.Errorf("unknown trust tier %q", s)
	}
}

// ErrToolNotRegistered is returned when a tool has no tier assignment for an
// agent type. The table is closed-world: every exposed tool must be declared.
var ErrToolNotRegistered = errors.New("tool not registered for agent type")

// Registry holds the immutable per-agent-type tier assignments, built once
// at startup. A tool's tier is a property of the tool within one agent's
// surface; different agent types expose disjoint declarations.
type Registry struct {
	assignments map[string]map[string]Tier // agent type → tool → tier
}

// NewRegistry builds a registry from agent type → tool → tier assignments.
func NewRegistry(assignments map[string]map[string]Tier) *Registry {
	copied := make(map[string]map[string]Tier, len(assignments))
	for agentType, tools := range assignments {
		m := make(map[string]Tier, len(tools))
		for tool, tier := range tools {
			m[tool] = tier
		}
		copied[agentType] = m
	}
	return &Registry{assignments: copied}
}

// TierOf returns the tier assigned to the tool for the agent type.
// A missing assignment is a configuration defect, not a normal denial.
func (r *Registry) TierOf(agentType, tool string) (Tier, error) {
	tools, ok := r.assignments[agentType]
	if !ok {
		return TierUnspecified, fmt.Errorf("agent type %q: %w", agentType, ErrToolNotRegistered)
	}
	tier, ok := tools[tool]
	if !ok {
		return TierUnspecified, fmt.Errorf("agent type %q, tool %q: %w", agentType, tool, ErrToolNotRegistered)
	}
	return tier, nil
}

// Tools returns the tool names declared for an agent type.
func (r *Registry) Tools(agentType string) []string {
	tools := r.assignments[agentType]
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	return names
}
