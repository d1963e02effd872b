package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/ssobridge/pkg/accounts"
	"github.com/platinummonkey/ssobridge/pkg/httputil"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/sso"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is unset
const DefaultMaxBodyBytes int64 = 1 << 20

// Options are the pieces the API server is assembled from
type Options struct {
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Accounts *accounts.Handlers
	SSO      *sso.Handlers

	// CredentialLimit and PartnerLimit throttle /login and /register and the
	// server-to-server API respectively. Nil means unlimited.
	CredentialLimit func(http.Handler) http.Handler
	PartnerLimit    func(http.Handler) http.Handler

	MaxBodyBytes int64
	// Tracing wraps the whole handler in an OpenTelemetry server span
	Tracing bool
}

// Server is the public API: local auth plus the handoff endpoints
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// New creates the API server
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{router: mux.NewRouter()}
	s.setupRoutes(opts)

	var h http.Handler = httputil.Chain(
		httputil.RequestIDMiddleware(opts.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
	)(s.router)
	if opts.Tracing {
		h = observability.TraceHandler(h, "ssobridge")
	}
	s.handler = h
	return s
}

func (s *Server) setupRoutes(opts Options) {
	if opts.Metrics != nil {
		// Router middleware runs after matching, so the route template is known
		s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics, RouteTemplate))
	}
	if opts.CredentialLimit != nil || opts.PartnerLimit != nil {
		s.router.Use(routeLimits(opts.CredentialLimit, opts.PartnerLimit))
	}

	if opts.Accounts != nil {
		opts.Accounts.RegisterRoutes(s.router)
	}
	if opts.SSO != nil {
		opts.SSO.RegisterRoutes(s.router)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

var (
	credentialRoutes = map[string]bool{"/login": true, "/register": true}
	partnerRoutes    = map[string]bool{
		sso.ValidatePath: true,
		sso.SyncUserPath: true,
		"/sso/validate":  true,
		"/sso/sync-user": true,
	}
)

// routeLimits picks the limiter for the matched route
func routeLimits(credential, partner func(http.Handler) http.Handler) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		credLimited, partnerLimited := next, next
		if credential != nil {
			credLimited = credential(next)
		}
		if partner != nil {
			partnerLimited = partner(next)
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tpl := RouteTemplate(r)
			switch {
			case credentialRoutes[tpl]:
				credLimited.ServeHTTP(w, r)
			case partnerRoutes[tpl]:
				partnerLimited.ServeHTTP(w, r)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Router exposes the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteTemplate returns the matched mux path template, or "unmatched"
func RouteTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// NewHealthMux serves the probes and, when gatherer is set, /metrics. It runs
// on its own port so probes never compete with user traffic.
func NewHealthMux(checker *observability.HealthChecker, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, checker)
	if gatherer != nil {
		observability.RegisterMetricsEndpoint(mux, gatherer)
	}
	return mux
}
