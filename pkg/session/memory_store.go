package session

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryCapacity bounds the in-process store when no size is given
const DefaultMemoryCapacity = 10000

// MemoryStore keeps sessions in an expiring LRU. Sessions are lost on
// restart and not shared between replicas.
type MemoryStore struct {
	cache *expirable.LRU[string, Session]
	now   func() time.Time
}

// NewMemoryStore creates an in-process store holding at most size sessions,
// each evicted after ttl at the latest.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemoryCapacity
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, Session](size, nil, ttl),
		now:   time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	if s.ID == "" || s.UserID == 0 {
		return fmt.Errorf("session: missing id or user id")
	}
	m.cache.Add(s.ID, s)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if s.Expired(m.now()) {
		m.cache.Remove(id)
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.cache.Remove(id)
	return nil
}

// Len returns the number of sessions currently held
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
