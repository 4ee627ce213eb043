package auth

import "context"

// StaticAuthenticator is a development-only authenticator that accepts any
// agk_ key and derives the tenant id from its prefix.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, apiKey string) (*TenantContext, error) {
	if !ValidKeyFormat(apiKey) {
		return nil, ErrUnauthenticated
	}
	return &TenantContext{
		TenantID: "static-" + apiKey[:prefixLen],
		Mode:     "enforce",
		FailOpen: true,
	}, nil
}
