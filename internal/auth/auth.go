// Package auth validates tenant API keys and resolves the tenant identity
// attached to every gateway request.
package auth

import (
	"context"
	"errors"
	"strings"
)

// Authenticator validates an API key and returns the tenant it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*TenantContext, error)
}

// TenantContext holds the authenticated tenant's identity and configuration.
type TenantContext struct {
	TenantID string
	Mode     string // "enforce" or "shadow"
	FailOpen bool
}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

// keyPrefix is the fixed prefix of every gateway API key.
const keyPrefix = "agk_"

// prefixLen is how many leading characters identify a key in the tenants table.
const prefixLen = 8

// ValidKeyFormat reports whether a raw token looks like a gateway API key.
func ValidKeyFormat(token string) bool {
	return len(token) >= prefixLen && strings.HasPrefix(token, keyPrefix)
}
