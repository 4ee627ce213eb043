package policy

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/bookline-ai/gatekeeper/internal/ratelimit"
	"github.com/bookline-ai/gatekeeper/internal/tiers"
	"go.uber.org/zap"
)

func staticResolver() *StaticResolver {
	reg := tiers.NewRegistry(map[string]map[string]tiers.Tier{
		"booking": {
			"get_services":   tiers.TierRead,
			"create_booking": tiers.TierWrite,
		},
	})
	limits := ratelimit.Table{
		Default: ratelimit.Spec{MaxPerTurn: 3, MaxPerSession: 30},
		Tools:   map[string]ratelimit.Spec{"create_booking": {MaxPerTurn: 2, MaxPerSession: 10}},
	}
	schemas := map[string]map[string]map[string]any{
		"booking": {
			"create_booking": {
				"type":     "object",
				"required": []any{"service_id"},
				"properties": map[string]any{
					"service_id": map[string]any{"type": "string"},
				},
			},
		},
	}
	return NewStaticResolver(reg, limits, schemas)
}

func TestStaticResolver_DeclaredTool(t *testing.T) {
	r := staticResolver()

	p, err := r.ResolveTool(context.Background(), "t1", "booking", "create_booking")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("expected a policy for a declared tool")
	}
	if p.Tier != tiers.TierWrite {
		t.Fatalf("expected write tier, got %v", p.Tier)
	}
	if p.Limits == nil || p.Limits.MaxPerTurn != 2 {
		t.Fatalf("expected per-tool limits override, got %+v", p.Limits)
	}
	if p.ArgumentSchema == nil {
		t.Fatal("expected argument schema")
	}
}

func TestStaticResolver_UndeclaredToolIsNil(t *testing.T) {
	r := staticResolver()

	p, err := r.ResolveTool(context.Background(), "t1", "booking", "create_refund")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Fatal("undeclared tool must resolve to nil, not a default policy")
	}
}

func TestValidateArgs(t *testing.T) {
	r := staticResolver()
	p, _ := r.ResolveTool(context.Background(), "t1", "booking", "create_booking")

	if err := p.ValidateArgs(`{"service_id":"svc-1"}`); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}
	if err := p.ValidateArgs(`{"date":"2026-09-01"}`); err == nil {
		t.Fatal("missing required field should fail validation")
	}
	if err := p.ValidateArgs(`not json`); err == nil {
		t.Fatal("malformed JSON should fail validation")
	}

	// No schema accepts anything.
	noSchema, _ := r.ResolveTool(context.Background(), "t1", "booking", "get_services")
	if err := noSchema.ValidateArgs(`whatever`); err != nil {
		t.Fatalf("schema-less policy should accept any args, got %v", err)
	}
}

// countingPolicyStore counts DB lookups.
type countingPolicyStore struct {
	row   *policyRow
	err   error
	calls int
}

func (s *countingPolicyStore) LookupToolPolicy(_ context.Context, _, _, _ string) (*policyRow, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.row, nil
}

func TestPostgresRegistry_CacheHit(t *testing.T) {
	store := &countingPolicyStore{
		row: &policyRow{
			TenantID:      "t1",
			AgentType:     "booking",
			ToolName:      "cancel_booking",
			Tier:          "destructive",
			MaxPerTurn:    sql.NullInt64{Int64: 1, Valid: true},
			MaxPerSession: sql.NullInt64{Int64: 3, Valid: true},
		},
	}
	reg := newPostgresRegistryWithStore(store, 30*time.Second, zap.NewNop())

	p, err := reg.ResolveTool(context.Background(), "t1", "booking", "cancel_booking")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.Tier != tiers.TierDestructive {
		t.Fatalf("unexpected policy %+v", p)
	}
	if p.Limits == nil || p.Limits.MaxPerSession != 3 {
		t.Fatalf("unexpected limits %+v", p.Limits)
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 DB call, got %d", store.calls)
	}

	if _, err := reg.ResolveTool(context.Background(), "t1", "booking", "cancel_booking"); err != nil {
		t.Fatal(err)
	}
	if store.calls != 1 {
		t.Fatalf("expected cache hit, got %d DB calls", store.calls)
	}
}

func TestPostgresRegistry_NegativeCache(t *testing.T) {
	store := &countingPolicyStore{err: sql.ErrNoRows}
	reg := newPostgresRegistryWithStore(store, 30*time.Second, zap.NewNop())

	for i := 0; i < 3; i++ {
		p, err := reg.ResolveTool(context.Background(), "t1", "booking", "unknown_tool")
		if err != nil {
			t.Fatal(err)
		}
		if p != nil {
			t.Fatal("expected nil policy for missing row")
		}
	}
	if store.calls != 1 {
		t.Fatalf("negative result should be cached, got %d DB calls", store.calls)
	}
}

func TestPostgresRegistry_BadTierRow(t *testing.T) {
	store := &countingPolicyStore{
		row: &policyRow{TenantID: "t1", AgentType: "booking", ToolName: "x", Tier: "nuclear"},
	}
	reg := newPostgresRegistryWithStore(store, 30*time.Second, zap.NewNop())

	if _, err := reg.ResolveTool(context.Background(), "t1", "booking", "x"); err == nil {
		t.Fatal("expected error for unparseable tier")
	}
}

func TestChain_FirstDeclaredWins(t *testing.T) {
	pgStore := &countingPolicyStore{
		row: &policyRow{TenantID: "t1", AgentType: "booking", ToolName: "create_booking", Tier: "destructive"},
	}
	pg := newPostgresRegistryWithStore(pgStore, 30*time.Second, zap.NewNop())
	chain := Chain{pg, staticResolver()}

	// Tenant override takes precedence over the static table.
	p, err := chain.ResolveTool(context.Background(), "t1", "booking", "create_booking")
	if err != nil {
		t.Fatal(err)
	}
	if p.Tier != tiers.TierDestructive {
		t.Fatalf("expected tenant override tier, got %v", p.Tier)
	}
}

func TestChain_FallsBackToStatic(t *testing.T) {
	pgStore := &countingPolicyStore{err: sql.ErrNoRows}
	pg := newPostgresRegistryWithStore(pgStore, 30*time.Second, zap.NewNop())
	chain := Chain{pg, staticResolver()}

	p, err := chain.ResolveTool(context.Background(), "t1", "booking", "get_services")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.Tier != tiers.TierRead {
		t.Fatalf("expected static fallback, got %+v", p)
	}
}
