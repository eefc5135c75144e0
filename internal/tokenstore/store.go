// Package tokenstore persists the bearer credential across process restarts.
//
// Every backend scopes the credential to one API origin, mirroring per-origin
// browser storage. Tokens are opaque: stores never validate them.
package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Store holds at most one credential for its origin.
type Store interface {
	// Get returns the held credential or "" when none is stored.
	Get(ctx context.Context) (string, error)
	// Set replaces the held credential.
	Set(ctx context.Context, token string) error
	// Clear removes the credential; clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// ExpiresAt peeks at the exp claim of a JWT without verifying it.
// Non-JWT tokens and tokens without exp report false.
func ExpiresAt(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Memory is a process-local Store.
type Memory struct {
	mu    sync.Mutex
	token string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Get(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *Memory) Set(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
