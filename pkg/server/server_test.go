package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ssobridge/pkg/config"
	"github.com/platinummonkey/ssobridge/pkg/httputil"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/storage"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = storage.DriverSQLite
	cfg.Storage.DSN = ":memory:"
	cfg.SSO.AppURL = "http://app.test"
	cfg.SSO.SharedSecret = "server-test-secret"
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(context.Background(), testConfig(), observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestApp_RegisterWithoutPartner(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(url.Values{
		"name":                  {"Solo"},
		"email":                 {"solo@example.com"},
		"password":              {"secret123"},
		"password_confirmation": {"secret123"},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := serve(app.API, req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://app.test/dashboard", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get(httputil.RequestIDHeader))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, app.Tasks.Wait(ctx))

	_, err := app.Users.FindByEmail(context.Background(), "solo@example.com")
	assert.NoError(t, err)
}

func TestApp_TokenBackendSelection(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.TokenBackend = storage.BackendMemory

	app, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, "*sso.MemoryTokenStore", typeName(app.Tokens))
	assert.Equal(t, "*sso.SQLTokenStore", typeName(newTestApp(t).Tokens))
}

func TestApp_RedisUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.TokenBackend = storage.BackendRedis
	cfg.Storage.RedisURL = "redis://127.0.0.1:1/0"

	_, err := NewApp(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestServer_RequestIDIsPropagated(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set(httputil.RequestIDHeader, "6f1c2a1e-5f4e-4d8a-9c39-0e0b6a2f8d11")
	rec := serve(app.API, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "6f1c2a1e-5f4e-4d8a-9c39-0e0b6a2f8d11", rec.Header().Get(httputil.RequestIDHeader))
}

func TestServer_MetricsUseRouteTemplate(t *testing.T) {
	metrics := observability.NewTestMetrics()
	s := New(Options{Metrics: metrics})
	s.Router().HandleFunc("/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("GET")

	for _, id := range []string{"1", "2", "3"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/widgets/"+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/widgets/{id}", "204")))
}

func TestServer_NotFoundAndMethodNotAllowed(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app.API, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())

	rec = serve(app.API, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RecoversFromPanics(t *testing.T) {
	s := New(Options{})
	s.Router().HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_LimitsBodySize(t *testing.T) {
	s := New(Options{MaxBodyBytes: 16})
	s.Router().HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := httputil.ParseFieldsOrError(w, r); ok {
			w.WriteHeader(http.StatusOK)
		}
	}).Methods("POST")

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, serve(s, req).Code)
}

func TestHealthMux(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app.Health, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(app.Health, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database"`)

	// Drive one request through the API so the counter has a sample
	serve(app.API, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	rec = serve(app.Health, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ssobridge_http_requests_total")
}

func TestHealthMux_WithoutMetrics(t *testing.T) {
	mux := NewHealthMux(observability.NewHealthChecker(nil, nil), nil)
	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := config.Default().Server
	cfg.Host = "127.0.0.1"
	srv := NewHTTPServer(cfg, "0", http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, observability.NopLogger(), time.Second, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ReportsListenFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	_, port, err := net.SplitHostPort(taken.Addr().String())
	require.NoError(t, err)

	cfg := config.Default().Server
	cfg.Host = "127.0.0.1"
	busy := NewHTTPServer(cfg, port, http.NotFoundHandler())
	other := NewHTTPServer(cfg, "0", http.NotFoundHandler())

	err = Run(context.Background(), observability.NopLogger(), time.Second, busy, other)
	assert.Error(t, err)
}

func typeName(v interface{}) string {
	return fmt.Sprintf("%T", v)
}

func TestApp_RateLimitsCredentialRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.CredentialsPerMin = 1
	cfg.RateLimit.CredentialsBurst = 0

	app, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer app.Close()

	login := func() int {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"nobody@example.com","password":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		return serve(app.API, req).Code
	}

	assert.Equal(t, http.StatusUnauthorized, login())
	assert.Equal(t, http.StatusTooManyRequests, login())

	for i := 0; i < 3; i++ {
		rec := serve(app.API, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "other routes are not limited")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sso/validate", strings.NewReader(`{"token":"x","secret":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusUnauthorized, serve(app.API, req).Code, "partner routes have their own budget")
}

func TestApp_RateLimitDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = false

	app, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer app.Close()

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"nobody@example.com","password":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		require.Equal(t, http.StatusUnauthorized, serve(app.API, req).Code)
	}
}

func TestApp_StartStop(t *testing.T) {
	app := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, app.Start(ctx))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	assert.NoError(t, app.Stop(stopCtx))
}
