// Package policy resolves the effective admission policy for a tool — its
// trust tier, call budget, and optional argument schema — from static
// configuration and per-tenant overrides.
package policy

import (
	"context"

	"github.com/bookline-ai/gatekeeper/internal/ratelimit"
	"github.com/bookline-ai/gatekeeper/internal/tiers"
)

// ToolPolicy is the effective policy for one tool within one agent surface.
type ToolPolicy struct {
	TenantID  string // empty for static (deployment-wide) policy
	AgentType string
	ToolName  string
	Tier      tiers.Tier
	// Limits overrides the deployment default spec when non-nil.
	Limits *ratelimit.Spec
	// ArgumentSchema is an optional JSON Schema the call arguments must
	// satisfy. nil disables validation.
	ArgumentSchema map[string]any
}

// Resolver looks up the policy for a tool. A (nil, nil) return means the tool
// is not declared — the closed-world miss the caller turns into a blocked
// decision.
type Resolver interface {
	ResolveTool(ctx context.Context, tenantID, agentType, tool string) (*ToolPolicy, error)
}

// StaticResolver serves the immutable policy table built at startup. Tenant
// identity is ignored — every tenant gets the deployment defaults.
type StaticResolver struct {
	registry *tiers.Registry
	limits   ratelimit.Table
	schemas  map[string]map[string]map[string]any // agent type → tool → schema
}

// NewStaticResolver builds a resolver over the startup policy tables.
func NewStaticResolver(registry *tiers.Registry, limits ratelimit.Table, schemas map[string]map[string]map[string]any) *StaticResolver {
	return &StaticResolver{registry: registry, limits: limits, schemas: schemas}
}

func (r *StaticResolver) ResolveTool(_ context.Context, _, agentType, tool string) (*ToolPolicy, error) {
	tier, err := r.registry.TierOf(agentType, tool)
	if err != nil {
		return nil, nil // not declared
	}

	p := &ToolPolicy{
		AgentType: agentType,
		ToolName:  tool,
		Tier:      tier,
	}
	if spec, ok := r.limits.Tools[tool]; ok {
		p.Limits = &spec
	}
	if byTool, ok := r.schemas[agentType]; ok {
		p.ArgumentSchema = byTool[tool]
	}
	return p, nil
}

// Chain tries each resolver in order and returns the first declared policy.
// Used to let per-tenant Postgres rows override the static table.
type Chain []Resolver

func (c Chain) ResolveTool(ctx context.Context, tenantID, agentType, tool string) (*ToolPolicy, error) {
	for _, r := range c {
		p, err := r.ResolveTool(ctx, tenantID, agentType, tool)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}
