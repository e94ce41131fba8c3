// Package credential holds the bearer token the client authenticates with.
// A failed identity or room lookup invalidates it so the front end falls
// back to asking for a new one.
package credential

import (
	"context"
	"errors"
	"sync"
)

// ErrNoCredential is returned when no token is stored.
var ErrNoCredential = errors.New("credential: no token stored")

// Store reads, writes and invalidates the stored token.
type Store interface {
	Token(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Invalidate(ctx context.Context) error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu          sync.Mutex
	token       string
	invalidated int
}

// NewMemoryStore returns a MemoryStore seeded with token, which may be empty.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Token(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", ErrNoCredential
	}
	return m.token, nil
}

func (m *MemoryStore) Set(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Invalidate(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.invalidated++
	m.mu.Unlock()
	return nil
}

// Invalidations reports how many times Invalidate was called.
func (m *MemoryStore) Invalidations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidated
}
