package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/ssobridge/pkg/observability"
)

// DefaultTTL is the session lifetime when none is configured
const DefaultTTL = 2 * time.Hour

// Manager ties a Store to the session cookie
type Manager struct {
	store  Store
	cookie CookieOptions
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a session manager
func NewManager(store Store, cookie CookieOptions, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:  store,
		cookie: cookie.normalize(),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Establish creates a fresh session for the user and sets its cookie.
// A new id is generated every time, so a pre-existing cookie value is never
// promoted to an authenticated session.
func (m *Manager) Establish(ctx context.Context, w http.ResponseWriter, userID int64, email string) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := Session{
		ID:        id,
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	SetCookie(w, s.ID, s.ExpiresAt, m.cookie)
	return &s, nil
}

// Current returns the session carried by r. Store errors are logged and
// reported as no session.
func (m *Manager) Current(r *http.Request) (*Session, bool) {
	id, ok := ReadCookie(r, m.cookie)
	if !ok {
		return nil, false
	}

	s, err := m.store.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			observability.FromContext(r.Context()).WithError(err).Warn("session lookup failed")
		}
		return nil, false
	}
	if s.Expired(m.now()) {
		return nil, false
	}
	return s, true
}

// Destroy deletes the session carried by r (if any) and clears the cookie
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) {
	if id, ok := ReadCookie(r, m.cookie); ok {
		if err := m.store.Delete(r.Context(), id); err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("session delete failed")
		}
	}
	ClearCookie(w, m.cookie)
}

// Regenerate retires the session r carries, if any, and establishes a new
// one for the user. Logins go through here so the previous id stops working
// at once instead of at its expiry.
func (m *Manager) Regenerate(w http.ResponseWriter, r *http.Request, userID int64, email string) (*Session, error) {
	if id, ok := ReadCookie(r, m.cookie); ok {
		if err := m.store.Delete(r.Context(), id); err != nil && !errors.Is(err, ErrNotFound) {
			observability.FromContext(r.Context()).WithError(err).Warn("session delete failed")
		}
	}
	return m.Establish(r.Context(), w, userID, email)
}

// CookieName returns the name of the session cookie
func (m *Manager) CookieName() string {
	return m.cookie.Name
}
