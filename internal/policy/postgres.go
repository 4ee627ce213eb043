package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bookline-ai/gatekeeper/internal/ratelimit"
	"github.com/bookline-ai/gatekeeper/internal/tiers"
	"go.uber.org/zap"
)

// PolicyStore abstracts DB queries for testability.
type PolicyStore interface {
	LookupToolPolicy(ctx context.Context, tenantID, agentType, tool string) (*policyRow, error)
}

type policyRow struct {
	TenantID       string
	AgentType      string
	ToolName       string
	Tier           string
	MaxPerTurn     sql.NullInt64
	MaxPerSession  sql.NullInt64
	ArgumentSchema sql.NullString // JSONB as string
}

// sqlPolicyStore is the real implementation using *sql.DB.
type sqlPolicyStore struct {
	db *sql.DB
}

func (s *sqlPolicyStore) LookupToolPolicy(ctx context.Context, tenantID, agentType, tool string) (*policyRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, agent_type, tool_name, tier,
		       max_per_turn, max_per_session, argument_schema
		FROM tool_policies
		WHERE tenant_id = $1 AND agent_type = $2 AND tool_name = $3
	`, tenantID, agentType, tool)

	var r policyRow
	if err := row.Scan(
		&r.TenantID, &r.AgentType, &r.ToolName, &r.Tier,
		&r.MaxPerTurn, &r.MaxPerSession, &r.ArgumentSchema,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresRegistry resolves per-tenant tool policy overrides from the
// tool_policies table, behind a TTL cache.
type PostgresRegistry struct {
	store  PolicyStore
	cache  *policyCache
	logger *zap.Logger
}

// PostgresRegistryConfig configures the PostgresRegistry.
type PostgresRegistryConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewPostgresRegistry creates a registry backed by the given database.
func NewPostgresRegistry(cfg PostgresRegistryConfig) *PostgresRegistry {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &PostgresRegistry{
		store:  &sqlPolicyStore{db: cfg.DB},
		cache:  newPolicyCache(ttl),
		logger: cfg.Logger,
	}
}

// newPostgresRegistryWithStore creates a registry with a custom store (for testing).
func newPostgresRegistryWithStore(store PolicyStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresRegistry {
	if cacheTTL == 0 {
		cacheTTL = 60 * time.Second
	}
	return &PostgresRegistry{
		store:  store,
		cache:  newPolicyCache(cacheTTL),
		logger: logger,
	}
}

func (r *PostgresRegistry) ResolveTool(ctx context.Context, tenantID, agentType, tool string) (*ToolPolicy, error) {
	cached := r.cache.get(tenantID, agentType, tool)
	if cached.hit {
		if cached.needsRefresh {
			go r.refreshInBackground(tenantID, agentType, tool)
		}
		return cached.policy, nil
	}

	p, err := r.fetchFromDB(ctx, tenantID, agentType, tool)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Negative cache: no per-tenant override.
			r.cache.set(tenantID, agentType, tool, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("ResolveTool: %w", err)
	}

	r.cache.set(tenantID, agentType, tool, p)
	return p, nil
}

func (r *PostgresRegistry) fetchFromDB(ctx context.Context, tenantID, agentType, tool string) (*ToolPolicy, error) {
	row, err := r.store.LookupToolPolicy(ctx, tenantID, agentType, tool)
	if err != nil {
		return nil, err
	}
	return parsePolicyRow(row)
}

func (r *PostgresRegistry) refreshInBackground(tenantID, agentType, tool string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := r.fetchFromDB(ctx, tenantID, agentType, tool)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.cache.set(tenantID, agentType, tool, nil)
			return
		}
		r.logger.Warn("background policy refresh failed",
			zap.String("tenant_id", tenantID),
			zap.String("agent_type", agentType),
			zap.String("tool_name", tool),
			zap.Error(err),
		)
		return
	}
	r.cache.set(tenantID, agentType, tool, p)
}

func parsePolicyRow(row *policyRow) (*ToolPolicy, error) {
	tier, err := tiers.ParseTier(row.Tier)
	if err != nil {
		return nil, fmt.Errorf("parsePolicyRow: %w", err)
	}

	p := &ToolPolicy{
		TenantID:  row.TenantID,
		AgentType: row.AgentType,
		ToolName:  row.ToolName,
		Tier:      tier,
	}

	if row.MaxPerTurn.Valid || row.MaxPerSession.Valid {
		p.Limits = &ratelimit.Spec{
			MaxPerTurn:    int(row.MaxPerTurn.Int64),
			MaxPerSession: int(row.MaxPerSession.Int64),
		}
	}

	if row.ArgumentSchema.Valid && row.ArgumentSchema.String != "" {
		var schema map[string]any
		if err := json.Unmarshal([]byte(row.ArgumentSchema.String), &schema); err != nil {
			return nil, fmt.Errorf("parsePolicyRow: argument_schema: %w", err)
		}
		p.ArgumentSchema = schema
	}

	return p, nil
}
