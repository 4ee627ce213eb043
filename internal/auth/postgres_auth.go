package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TenantStore abstracts DB queries for testability.
type TenantStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*tenantRow, error)
}

type tenantRow struct {
	TenantID   string
	APIKeyHash string
	Mode       string
	FailOpen   bool
}

// sqlTenantStore is the real implementation using *sql.DB.
type sqlTenantStore struct {
	db *sql.DB
}

func (s *sqlTenantStore) LookupByPrefix(ctx context.Context, prefix string) (*tenantRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, api_key_hash, mode, fail_open
		FROM tenants
		WHERE api_key_prefix = $1
	`, prefix)

	var r tenantRow
	if err := row.Scan(&r.TenantID, &r.APIKeyHash, &r.Mode, &r.FailOpen); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresAuthenticator validates API keys against the tenants table.
type PostgresAuthenticator struct {
	store    TenantStore
	cache    *AuthCache
	logger   *zap.Logger
	failOpen bool
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	FailOpen bool
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new PostgresAuthenticator.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:    &sqlTenantStore{db: cfg.DB},
		cache:    NewAuthCache(ttl),
		logger:   cfg.Logger,
		failOpen: cfg.FailOpen,
	}
}

// NewPostgresAuthenticatorWithStore creates an authenticator with a custom store (for testing).
func NewPostgresAuthenticatorWithStore(store TenantStore, cacheTTL time.Duration, failOpen bool, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:    store,
		cache:    NewAuthCache(cacheTTL),
		logger:   logger,
		failOpen: failOpen,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*TenantContext, error) {
	if !ValidKeyFormat(apiKey) {
		return nil, ErrUnauthenticated
	}

	// Check cache
	cacheResult := a.cache.Get(apiKey)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go a.refreshInBackground(apiKey)
		}
		return cacheResult.Tenant, nil
	}

	// Cache miss — authenticate synchronously
	tenant, err := a.authenticateFromDB(ctx, apiKey)
	if err != nil {
		if a.failOpen {
			a.logger.Warn("auth failed, degrading to fail-open",
				zap.Error(err),
			)
			return &TenantContext{
				TenantID: "unknown",
				Mode:     "enforce",
				FailOpen: true,
			}, nil
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	a.cache.Set(apiKey, tenant)
	return tenant, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, apiKey string) (*TenantContext, error) {
	prefix := apiKey[:prefixLen]

	row, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrUnauthenticated
	}

	return &TenantContext{
		TenantID: row.TenantID,
		Mode:     row.Mode,
		FailOpen: row.FailOpen,
	}, nil
}

func (a *PostgresAuthenticator) refreshInBackground(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tenant, err := a.authenticateFromDB(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	a.cache.Set(apiKey, tenant)
}
