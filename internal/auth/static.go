package auth

import "context"

// StaticTokenVerifier verifies bearer tokens against a fixed, in-memory
// token-to-principal table loaded at startup (e.g. from an env var), rather
// than from a user database. Suitable for single-operator deployments where
// a full identity provider is overkill; larger deployments wire a different
// TokenVerifier implementation (OIDC, a database-backed table, ...) without
// any change to this package's consumers.
type StaticTokenVerifier struct {
	principals map[string]Principal
}

// NewStaticTokenVerifier builds a verifier from a token->Principal table.
func NewStaticTokenVerifier(principals map[string]Principal) *StaticTokenVerifier {
	return &StaticTokenVerifier{principals: principals}
}

// Verify looks up token in the static table. Returns ErrTokenInvalid if the
// token is empty or unknown.
func (v *StaticTokenVerifier) Verify(_ context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrTokenInvalid
	}
	p, ok := v.principals[token]
	if !ok {
		return Principal{}, ErrTokenInvalid
	}
	return p, nil
}
