package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/ssobridge/pkg/accounts"
	"github.com/platinummonkey/ssobridge/pkg/async"
	"github.com/platinummonkey/ssobridge/pkg/config"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/ratelimit"
	"github.com/platinummonkey/ssobridge/pkg/session"
	"github.com/platinummonkey/ssobridge/pkg/sso"
	"github.com/platinummonkey/ssobridge/pkg/storage"
)

// App is one fully wired bridge instance
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	DB    *sql.DB
	Redis *redis.Client

	Users    *accounts.Store
	Tokens   sso.TokenStore
	Sessions *session.Manager
	Sweeper  *sso.Sweeper
	Tasks    *async.Tracker

	API    *Server
	Health *http.ServeMux

	memoryLimiters []*ratelimit.MemoryLimiter
}

// NewApp connects storage, runs migrations and wires every component from
// cfg. Close releases what it opened.
func NewApp(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	app := &App{Config: cfg, Logger: logger, Tasks: &async.Tracker{}}

	if cfg.Observability.MetricsEnabled {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.Metrics = observability.NewMetrics(app.Registry)
	}

	db, dialect, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	app.DB = db
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		_ = app.Close()
		return nil, err
	}
	logger.WithField("driver", cfg.Storage.Driver).Info("database ready")

	if cfg.Storage.NeedsRedis() {
		client, err := storage.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Redis = client
	}

	if err := app.wire(); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire() error {
	cfg := a.Config

	tokens, err := a.tokenStore()
	if err != nil {
		return err
	}
	a.Tokens = tokens

	sessions, err := a.sessionStore()
	if err != nil {
		return err
	}
	a.Sessions = session.NewManager(sessions, session.CookieOptions{
		Name:   cfg.SSO.SessionCookieName,
		Secure: cfg.SSO.SecureCookies,
	}, cfg.SSO.SessionTTL)

	a.Users = accounts.NewStore(a.DB, 0)
	a.Sweeper = sso.NewSweeper(tokens, cfg.SSO.SweepSchedule, a.Logger, a.Metrics)

	secret := sso.NewSecret(cfg.SSO.SharedSecret)
	partner := sso.NewPartnerClient(cfg.SSO.PartnerURL, secret, cfg.SSO.PartnerTimeout, a.Metrics)
	reconciler := sso.NewReconciler(a.Users, a.Metrics)
	orchestrator := sso.NewOrchestrator(
		sso.NewIssuer(tokens, cfg.SSO.TokenTTL, a.Metrics),
		partner,
		reconciler,
		sso.OrchestratorConfig{AppURL: cfg.SSO.AppURL, DashboardPath: cfg.SSO.DefaultReturnPath},
	)
	if !partner.Configured() {
		a.Logger.Warn("no partner url configured, handoffs disabled")
	}

	var credentialLimit, partnerLimit func(http.Handler) http.Handler
	if rl := cfg.RateLimit; rl.Enabled {
		credentialLimit = ratelimit.Middleware(
			a.limiter("credentials", ratelimit.Config{RequestsPerWindow: rl.CredentialsPerMin, WindowDuration: time.Minute, BurstSize: rl.CredentialsBurst}),
			ratelimit.Options{Name: "credentials", TrustForwardedFor: rl.TrustForwardedFor, Metrics: a.Metrics},
		)
		partnerLimit = ratelimit.Middleware(
			a.limiter("partner", ratelimit.Config{RequestsPerWindow: rl.PartnerPerMin, WindowDuration: time.Minute, BurstSize: rl.PartnerBurst}),
			ratelimit.Options{Name: "partner", TrustForwardedFor: rl.TrustForwardedFor, Metrics: a.Metrics},
		)
	}

	a.API = New(Options{
		Logger:          a.Logger,
		Metrics:         a.Metrics,
		CredentialLimit: credentialLimit,
		PartnerLimit:    partnerLimit,
		Accounts: accounts.NewHandlers(a.Users, a.Sessions, orchestrator, a.Tasks, accounts.HandlerConfig{
			AppURL:        cfg.SSO.AppURL,
			DashboardPath: cfg.SSO.DefaultReturnPath,
			LoginPath:     cfg.SSO.LoginPath,
			SyncTimeout:   cfg.SSO.PartnerTimeout,
		}),
		SSO: sso.NewHandlers(orchestrator, sso.NewValidator(tokens, secret, a.Metrics), reconciler, secret, a.Sessions, a.Users, a.Metrics, sso.HandlerConfig{
			AppURL:        cfg.SSO.AppURL,
			PartnerURL:    cfg.SSO.PartnerURL,
			DashboardPath: cfg.SSO.DefaultReturnPath,
			LoginPath:     cfg.SSO.LoginPath,
		}),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Tracing:      cfg.Observability.OTelEnabled,
	})

	checker := observability.NewHealthChecker(a.DB, a.Redis).WithVersion(cfg.Observability.OTelServiceVersion)
	if cfg.Storage.NeedsRedis() {
		checker.RequireRedis()
	}
	var gatherer prometheus.Gatherer
	if a.Registry != nil {
		gatherer = a.Registry
	}
	a.Health = NewHealthMux(checker, gatherer)
	return nil
}

// limiter shares limits through redis when the deployment has one
func (a *App) limiter(name string, c ratelimit.Config) ratelimit.Limiter {
	if a.Redis != nil {
		return ratelimit.NewRedisLimiter(a.Redis, c, name)
	}
	l := ratelimit.NewMemoryLimiter(c)
	a.memoryLimiters = append(a.memoryLimiters, l)
	return l
}

func (a *App) tokenStore() (sso.TokenStore, error) {
	switch a.Config.Storage.TokenBackend {
	case storage.BackendSQL:
		return sso.NewSQLTokenStore(a.DB), nil
	case storage.BackendRedis:
		return sso.NewRedisTokenStore(a.Redis), nil
	case storage.BackendMemory:
		a.Logger.Warn("memory token store is process-local; do not run more than one replica")
		return sso.NewMemoryTokenStore(), nil
	}
	return nil, fmt.Errorf("unknown token backend %q", a.Config.Storage.TokenBackend)
}

func (a *App) sessionStore() (session.Store, error) {
	switch a.Config.Storage.SessionBackend {
	case storage.BackendRedis:
		return session.NewRedisStore(a.Redis), nil
	case storage.BackendMemory:
		return session.NewMemoryStore(a.Config.Storage.SessionCacheSize, a.Config.SSO.SessionTTL), nil
	}
	return nil, fmt.Errorf("unknown session backend %q", a.Config.Storage.SessionBackend)
}

// Start launches the background work: the token sweeper when enabled and
// the cleanup of idle in-memory rate limit buckets until ctx is done.
func (a *App) Start(ctx context.Context) error {
	if a.Config.SSO.SweepEnabled {
		if err := a.Sweeper.Start(); err != nil {
			return err
		}
	}
	for _, l := range a.memoryLimiters {
		l.StartCleanup(ctx)
	}
	return nil
}

// Stop stops the sweeper and waits for in-flight partner pushes
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if a.Config.SSO.SweepEnabled {
		errs = append(errs, a.Sweeper.Stop(ctx))
	}
	if err := a.Tasks.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("partner sync tasks still running: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases the database and redis connections
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
