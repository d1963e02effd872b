package sso

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/ssobridge/pkg/accounts"
	"github.com/platinummonkey/ssobridge/pkg/async"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/session"
	"github.com/platinummonkey/ssobridge/pkg/storage"
)

const testSecret = "test-shared-secret"

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.Driver = storage.DriverSQLite
	cfg.DSN = ":memory:"

	ctx := context.Background()
	db, dialect, err := storage.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(ctx, db, dialect))
	return db
}

// node is one fully wired application behind an httptest server
type node struct {
	server   *httptest.Server
	url      string
	handler  http.Handler
	users    *accounts.Store
	tokens   TokenStore
	sessions *session.Manager
	tasks    *async.Tracker
	orch     *Orchestrator
	metrics  *observability.Metrics

	validateCalls atomic.Int32
	syncCalls     atomic.Int32
	// syncDelay stalls the sync-user endpoint, in nanoseconds
	syncDelay atomic.Int64
}

// newTestNode reserves a listener so the node's URL is known before the
// partner is wired.
func newTestNode(t *testing.T) *node {
	t.Helper()
	srv := httptest.NewUnstartedServer(nil)
	t.Cleanup(srv.Close)
	return &node{server: srv, url: "http://" + srv.Listener.Addr().String()}
}

// wire builds the node's components against partnerURL and starts serving
func (n *node) wire(t *testing.T, cookieName, partnerURL string) {
	t.Helper()
	db := openTestDB(t)

	n.metrics = observability.NewTestMetrics()
	n.users = accounts.NewStore(db, bcrypt.MinCost)
	n.tokens = NewSQLTokenStore(db)
	n.sessions = session.NewManager(session.NewMemoryStore(100, time.Hour), session.CookieOptions{Name: cookieName}, time.Hour)
	n.tasks = &async.Tracker{}

	secret := NewSecret(testSecret)
	partner := NewPartnerClient(partnerURL, secret, 2*time.Second, n.metrics)
	reconciler := NewReconciler(n.users, n.metrics)
	n.orch = NewOrchestrator(NewIssuer(n.tokens, time.Minute, n.metrics), partner, reconciler, OrchestratorConfig{
		AppURL:        n.url,
		DashboardPath: "/dashboard",
	})

	router := mux.NewRouter()
	accounts.NewHandlers(n.users, n.sessions, n.orch, n.tasks, accounts.HandlerConfig{
		AppURL:        n.url,
		DashboardPath: "/dashboard",
		LoginPath:     "/login",
		SyncTimeout:   2 * time.Second,
	}).RegisterRoutes(router)
	NewHandlers(n.orch, NewValidator(n.tokens, secret, n.metrics), reconciler, secret, n.sessions, n.users, n.metrics, HandlerConfig{
		AppURL:        n.url,
		PartnerURL:    partnerURL,
		DashboardPath: "/dashboard",
		LoginPath:     "/login",
	}).RegisterRoutes(router)

	n.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ValidatePath:
			n.validateCalls.Add(1)
		case SyncUserPath:
			n.syncCalls.Add(1)
			time.Sleep(time.Duration(n.syncDelay.Load()))
		}
		router.ServeHTTP(w, r)
	})
	n.server.Config.Handler = n.handler
	n.server.Start()
}

// loggedInCookies establishes a session on n and returns its cookies
func (n *node) loggedInCookies(t *testing.T, email string) []*http.Cookie {
	t.Helper()
	u, _, err := n.users.FindOrCreate(context.Background(), email, "Existing", "hash")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	_, err = n.sessions.Establish(context.Background(), rec, u.ID, u.Email)
	require.NoError(t, err)
	return rec.Result().Cookies()
}

// serve runs req through n's handler without the network
func (n *node) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	n.handler.ServeHTTP(rec, req)
	return rec
}
