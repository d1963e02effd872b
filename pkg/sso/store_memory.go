package sso

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryTokenStore keeps tokens in process memory. Tokens do not survive a
// restart and are not shared between replicas.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewMemoryTokenStore creates an empty in-memory token store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]*Token)}
}

// Create stores a copy of t
func (s *MemoryTokenStore) Create(_ context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.Value]; exists {
		return fmt.Errorf("failed to create sso token: token already exists")
	}
	stored := *t
	stored.Consumed = false
	s.tokens[t.Value] = &stored
	return nil
}

// Consume checks and flips the token under the store lock
func (s *MemoryTokenStore) Consume(_ context.Context, token string, now time.Time) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok || t.Consumed || t.Expired(now) {
		return Identity{}, ErrTokenInvalid
	}
	t.Consumed = true
	return t.Identity, nil
}

// DeleteExpired removes tokens whose expiry is before now
func (s *MemoryTokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.tokens {
		if t.ExpiresAt.Before(now) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored tokens
func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
