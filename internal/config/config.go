// Package config assembles the gateway's immutable startup configuration:
// server settings from the environment and the static tool-policy table,
// either built in or loaded from a JSON policy file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bookline-ai/gatekeeper/internal/ratelimit"
	"github.com/bookline-ai/gatekeeper/internal/tiers"
	"github.com/bookline-ai/gatekeeper/internal/traffic"
)

// Config holds every startup knob. Built once in main, injected by reference,
// never mutated afterwards.
type Config struct {
	HTTPPort string
	LogLevel string

	PostgresDSN   string
	ClickHouseDSN string

	AuthCacheTTL   time.Duration
	PolicyCacheTTL time.Duration
	AuthFailOpen   bool

	SoftConfirmTurnTTL int
	SessionIdleTimeout time.Duration

	Ceilings traffic.Ceilings

	// PolicyFile optionally replaces the built-in tool table.
	PolicyFile string
}

// DefaultCeilings returns the deployment-wide traffic ceilings.
func DefaultCeilings() traffic.Ceilings {
	return traffic.Ceilings{
		TenantPerMinute: 60,
		TenantPerHour:   1000,
		IPPerMinute:     30,
		IPPerHour:       600,
	}
}

// Policy bundles the three static tables the resolver is built from.
type Policy struct {
	Registry *tiers.Registry
	Limits   ratelimit.Table
	Schemas  map[string]map[string]map[string]any // agent type → tool → schema
}

// DefaultPolicy returns the built-in booking platform tool surface, so a
// DSN-less process is usable out of the box.
func DefaultPolicy() Policy {
	registry := tiers.NewRegistry(map[string]map[string]tiers.Tier{
		"booking": {
			"get_services":            tiers.TierRead,
			"check_availability":      tiers.TierRead,
			"get_bookings":            tiers.TierRead,
			"create_booking":          tiers.TierWrite,
			"update_booking":          tiers.TierWrite,
			"update_onboarding_state": tiers.TierWrite,
			"cancel_booking":          tiers.TierDestructive,
			"create_refund":           tiers.TierDestructive,
		},
		"concierge": {
			"get_services":       tiers.TierRead,
			"check_availability": tiers.TierRead,
			"get_bookings":       tiers.TierRead,
		},
	})

	limits := ratelimit.Table{
		Default: ratelimit.Spec{MaxPerTurn: 3, MaxPerSession: 30},
		Tools: map[string]ratelimit.Spec{
			"get_services":            {MaxPerTurn: 3, MaxPerSession: 50},
			"check_availability":      {MaxPerTurn: 5, MaxPerSession: 80},
			"get_bookings":            {MaxPerTurn: 3, MaxPerSession: 40},
			"create_booking":          {MaxPerTurn: 2, MaxPerSession: 10},
			"update_booking":          {MaxPerTurn: 2, MaxPerSession: 10},
			"update_onboarding_state": {MaxPerTurn: 3, MaxPerSession: 20},
			"cancel_booking":          {MaxPerTurn: 1, MaxPerSession: 3},
			"create_refund":           {MaxPerTurn: 1, MaxPerSession: 2},
		},
	}

	return Policy{Registry: registry, Limits: limits}
}

// --- JSON policy file ---

type policyFile struct {
	DefaultLimits *limitsJSON                      `json:"default_limits"`
	Agents        map[string]map[string]toolPolicy `json:"agents"`
}

type limitsJSON struct {
	MaxPerTurn    int `json:"max_per_turn"`
	MaxPerSession int `json:"max_per_session"`
}

type toolPolicy struct {
	Tier           string         `json:"tier"`
	MaxPerTurn     *int           `json:"max_per_turn,omitempty"`
	MaxPerSession  *int           `json:"max_per_session,omitempty"`
	ArgumentSchema map[string]any `json:"argument_schema,omitempty"`
}

// LoadPolicyFile reads a JSON policy file and builds the static tables it
// declares. The file replaces the built-in table entirely.
func LoadPolicyFile(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("LoadPolicyFile: %w", err)
	}

	var pf policyFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return Policy{}, fmt.Errorf("LoadPolicyFile: parse %s: %w", path, err)
	}
	if len(pf.Agents) == 0 {
		return Policy{}, fmt.Errorf("LoadPolicyFile: %s declares no agents", path)
	}

	assignments := make(map[string]map[string]tiers.Tier, len(pf.Agents))
	limits := ratelimit.Table{
		Default: ratelimit.Spec{MaxPerTurn: 3, MaxPerSession: 30},
		Tools:   make(map[string]ratelimit.Spec),
	}
	if pf.DefaultLimits != nil {
		limits.Default = ratelimit.Spec{
			MaxPerTurn:    pf.DefaultLimits.MaxPerTurn,
			MaxPerSession: pf.DefaultLimits.MaxPerSession,
		}
	}
	var schemas map[string]map[string]map[string]any

	for agentType, tools := range pf.Agents {
		assignments[agentType] = make(map[string]tiers.Tier, len(tools))
		for tool, tp := range tools {
			tier, err := tiers.ParseTier(tp.Tier)
			if err != nil {
				return Policy{}, fmt.Errorf("LoadPolicyFile: agent %q tool %q: %w", agentType, tool, err)
			}
			assignments[agentType][tool] = tier

			if tp.MaxPerTurn != nil || tp.MaxPerSession != nil {
				spec := limits.Default
				if tp.MaxPerTurn != nil {
					spec.MaxPerTurn = *tp.MaxPerTurn
				}
				if tp.MaxPerSession != nil {
					spec.MaxPerSession = *tp.MaxPerSession
				}
				limits.Tools[tool] = spec
			}
			if tp.ArgumentSchema != nil {
				if schemas == nil {
					schemas = make(map[string]map[string]map[string]any)
				}
				if schemas[agentType] == nil {
					schemas[agentType] = make(map[string]map[string]any)
				}
				schemas[agentType][tool] = tp.ArgumentSchema
			}
		}
	}

	return Policy{
		Registry: tiers.NewRegistry(assignments),
		Limits:   limits,
		Schemas:  schemas,
	}, nil
}
