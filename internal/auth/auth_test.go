package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func TestValidKeyFormat(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{"agk_abcd1234", true},
		{"agk_abcd", true},
		{"agk_", false},
		{"sk_abcd1234", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidKeyFormat(c.token); got != c.want {
			t.Errorf("ValidKeyFormat(%q) = %v, want %v", c.token, got, c.want)
		}
	}
}

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator()

	tenant, err := a.Authenticate(context.Background(), "agk_abcd1234")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if tenant.TenantID != "static-agk_abcd" {
		t.Errorf("expected tenant id derived from prefix, got %q", tenant.TenantID)
	}
	if tenant.Mode != "enforce" {
		t.Errorf("expected enforce mode, got %q", tenant.Mode)
	}

	if _, err := a.Authenticate(context.Background(), "bad_key"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for malformed key, got %v", err)
	}
}

func TestAuthCache(t *testing.T) {
	cache := NewAuthCache(100 * time.Millisecond)

	if r := cache.Get("agk_missing1"); r.Hit {
		t.Error("expected miss on empty cache")
	}

	tenant := &TenantContext{TenantID: "t1", Mode: "enforce"}
	cache.Set("agk_abcd1234", tenant)

	r := cache.Get("agk_abcd1234")
	if !r.Hit || r.NeedsRefresh {
		t.Errorf("expected fresh hit, got hit=%v refresh=%v", r.Hit, r.NeedsRefresh)
	}
	if r.Tenant.TenantID != "t1" {
		t.Errorf("wrong tenant: %q", r.Tenant.TenantID)
	}

	time.Sleep(150 * time.Millisecond)

	// First stale read wins the refresh, later ones do not.
	r = cache.Get("agk_abcd1234")
	if !r.Hit || !r.NeedsRefresh {
		t.Errorf("expected stale hit with refresh, got hit=%v refresh=%v", r.Hit, r.NeedsRefresh)
	}
	r = cache.Get("agk_abcd1234")
	if !r.Hit || r.NeedsRefresh {
		t.Errorf("second stale read must not refresh again, got refresh=%v", r.NeedsRefresh)
	}

	cache.Delete("agk_abcd1234")
	if r := cache.Get("agk_abcd1234"); r.Hit {
		t.Error("expected miss after delete")
	}
}

// mockTenantStore tracks lookups for cache assertions.
type mockTenantStore struct {
	rows    map[string]*tenantRow
	err     error
	lookups int
}

func (s *mockTenantStore) LookupByPrefix(_ context.Context, prefix string) (*tenantRow, error) {
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	row, ok := s.rows[prefix]
	if !ok {
		return nil, errors.New("no rows")
	}
	return row, nil
}

func hashKey(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

func TestPostgresAuthenticator_ValidKey(t *testing.T) {
	key := "agk_abcd1234efgh"
	store := &mockTenantStore{rows: map[string]*tenantRow{
		"agk_abcd": {TenantID: "t1", APIKeyHash: hashKey(t, key), Mode: "shadow", FailOpen: false},
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	tenant, err := a.Authenticate(context.Background(), key)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if tenant.TenantID != "t1" || tenant.Mode != "shadow" {
		t.Errorf("unexpected tenant %+v", tenant)
	}

	// Second call is served from cache.
	if _, err := a.Authenticate(context.Background(), key); err != nil {
		t.Fatalf("cached Authenticate failed: %v", err)
	}
	if store.lookups != 1 {
		t.Errorf("expected 1 DB lookup, got %d", store.lookups)
	}
}

func TestPostgresAuthenticator_WrongKey(t *testing.T) {
	store := &mockTenantStore{rows: map[string]*tenantRow{
		"agk_abcd": {TenantID: "t1", APIKeyHash: hashKey(t, "agk_abcd1234efgh"), Mode: "enforce"},
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	if _, err := a.Authenticate(context.Background(), "agk_abcd9999wrong"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for hash mismatch, got %v", err)
	}
}

func TestPostgresAuthenticator_FailOpen(t *testing.T) {
	store := &mockTenantStore{err: errors.New("connection refused")}

	// Fail-closed: the error surfaces.
	closed := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())
	if _, err := closed.Authenticate(context.Background(), "agk_abcd1234"); err == nil {
		t.Error("expected error with fail-open disabled")
	}

	// Fail-open: a degraded context is returned instead.
	open := NewPostgresAuthenticatorWithStore(store, time.Minute, true, zap.NewNop())
	tenant, err := open.Authenticate(context.Background(), "agk_abcd1234")
	if err != nil {
		t.Fatalf("fail-open should not error: %v", err)
	}
	if tenant.TenantID != "unknown" || tenant.Mode != "enforce" {
		t.Errorf("unexpected degraded context %+v", tenant)
	}
}
