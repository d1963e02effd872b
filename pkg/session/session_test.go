package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, userID int64, ttl time.Duration) Session {
	t.Helper()
	id, err := GenerateID()
	require.NoError(t, err)
	now := time.Now().UTC()
	return Session{ID: id, UserID: userID, Email: "a@x.com", CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

func TestGenerateID(t *testing.T) {
	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)
	ctx := context.Background()
	s := newSession(t, 7, time.Hour)

	require.NoError(t, store.Create(ctx, s))
	assert.True(t, mr.Exists(redisKeyPrefix+s.ID))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL(redisKeyPrefix+s.ID).Seconds(), 5)

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.UserID, got.UserID)
	assert.Equal(t, s.Email, got.Email)

	require.NoError(t, store.Delete(ctx, s.ID))
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ExpiresWithSession(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)
	s := newSession(t, 7, time.Minute)
	require.NoError(t, store.Create(context.Background(), s))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_RejectsInvalid(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)

	assert.Error(t, store.Create(context.Background(), Session{ID: "x"}))
	assert.Error(t, store.Create(context.Background(), newSession(t, 1, -time.Minute)))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(2, time.Hour)
	ctx := context.Background()

	s1 := newSession(t, 1, time.Hour)
	s2 := newSession(t, 2, time.Hour)
	s3 := newSession(t, 3, time.Hour)
	require.NoError(t, store.Create(ctx, s1))
	require.NoError(t, store.Create(ctx, s2))
	require.NoError(t, store.Create(ctx, s3))

	// capacity 2: the least recently used session is evicted
	_, err := store.Get(ctx, s1.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := store.Get(ctx, s3.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.UserID)

	require.NoError(t, store.Delete(ctx, s3.ID))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_AbsoluteExpiry(t *testing.T) {
	store := NewMemoryStore(10, time.Hour)
	s := newSession(t, 1, time.Minute)
	require.NoError(t, store.Create(context.Background(), s))

	store.now = func() time.Time { return s.ExpiresAt.Add(time.Second) }
	_, err := store.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetCookie(rec, "abc", time.Now().Add(time.Hour), CookieOptions{Name: "sid", Secure: true})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, "abc", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	rec = httptest.NewRecorder()
	ClearCookie(rec, CookieOptions{})
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(NewMemoryStore(10, time.Hour), CookieOptions{Name: "sid"}, time.Hour)

	rec := httptest.NewRecorder()
	s, err := m.Establish(context.Background(), rec, 42, "a@x.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	current, ok := m.Current(req)
	require.True(t, ok)
	assert.Equal(t, s.ID, current.ID)
	assert.Equal(t, int64(42), current.UserID)

	rec = httptest.NewRecorder()
	m.Destroy(rec, req)
	_, ok = m.Current(req)
	assert.False(t, ok)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestManager_EstablishRotatesID(t *testing.T) {
	m := NewManager(NewMemoryStore(10, time.Hour), CookieOptions{}, time.Hour)

	first, err := m.Establish(context.Background(), httptest.NewRecorder(), 1, "a@x.com")
	require.NoError(t, err)
	second, err := m.Establish(context.Background(), httptest.NewRecorder(), 1, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestManager_RegenerateRetiresOldSession(t *testing.T) {
	store := NewMemoryStore(10, time.Hour)
	m := NewManager(store, CookieOptions{}, time.Hour)

	rec := httptest.NewRecorder()
	old, err := m.Establish(context.Background(), rec, 1, "a@x.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	fresh, err := m.Regenerate(httptest.NewRecorder(), req, 1, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)

	_, err = store.Get(context.Background(), old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(context.Background(), fresh.ID)
	assert.NoError(t, err)

	// No cookie means nothing to retire
	_, err = m.Regenerate(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil), 2, "b@x.com")
	assert.NoError(t, err)
}

func TestManager_CurrentWithoutCookie(t *testing.T) {
	m := NewManager(NewMemoryStore(10, time.Hour), CookieOptions{}, time.Hour)

	_, ok := m.Current(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "forged"})
	_, ok = m.Current(req)
	assert.False(t, ok)
}
