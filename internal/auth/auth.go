// Package auth defines the credential boundary for the realtime client.
//
// The client never stores or renews credentials itself; it gates
// initialization on an authenticated TokenSource and delegates 401-class
// polling failures to Refresh.
package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAuthenticated is returned when a token is required but none is
// available. It is fatal for the attempt: the caller must re-authenticate
// and re-initialize.
var ErrNotAuthenticated = errors.New("auth: no valid credential available")

// TokenSource supplies the bearer credential used on socket upgrades and
// polling requests.
type TokenSource interface {
	// IsAuthenticated reports whether a usable credential is held.
	IsAuthenticated() bool

	// Token returns the current bearer token, or "" when unauthenticated.
	Token() string

	// Refresh obtains a fresh token, e.g. after the server rejects the
	// current one. Implementations talk to the identity provider.
	Refresh(ctx context.Context) (string, error)
}

// StaticTokenSource wraps a fixed token. Refresh re-issues the same token;
// a revoked static token cannot be recovered.
type StaticTokenSource struct {
	mu    sync.RWMutex
	token string
}

// NewStaticTokenSource returns a TokenSource over a fixed token.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

func (s *StaticTokenSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *StaticTokenSource) Refresh(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNotAuthenticated
	}
	return s.token, nil
}

// SetToken replaces the held token. Empty string revokes it.
func (s *StaticTokenSource) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}
