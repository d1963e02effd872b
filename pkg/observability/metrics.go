package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Token validation outcomes
const (
	OutcomeValid          = "valid"
	OutcomeInvalid        = "invalid"
	OutcomeSecretMismatch = "secret_mismatch"
	OutcomeError          = "error"
)

// Partner call outcomes
const (
	PartnerOK          = "ok"
	PartnerRejected    = "rejected"
	PartnerUnreachable = "unreachable"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Token lifecycle
	TokensIssuedTotal     prometheus.Counter
	TokenValidationsTotal *prometheus.CounterVec
	TokensSweptTotal      prometheus.Counter

	// Server-to-server calls made to the partner application
	PartnerCallsTotal   *prometheus.CounterVec
	PartnerCallDuration *prometheus.HistogramVec

	// Handoffs and reconciliation
	HandoffsTotal        *prometheus.CounterVec
	UsersReconciledTotal *prometheus.CounterVec

	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ssobridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		TokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ssobridge_tokens_issued_total",
				Help: "Total number of one-time SSO tokens issued",
			},
		),
		TokenValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_token_validations_total",
				Help: "Token validation attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokensSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ssobridge_tokens_swept_total",
				Help: "Expired tokens deleted by sweeps",
			},
		),

		PartnerCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_partner_calls_total",
				Help: "Server-to-server calls to the partner application",
			},
			[]string{"operation", "outcome"},
		),
		PartnerCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ssobridge_partner_call_duration_seconds",
				Help:    "Partner call duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),

		HandoffsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_handoffs_total",
				Help: "Inbound handoffs by result",
			},
			[]string{"result"},
		),
		UsersReconciledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_users_reconciled_total",
				Help: "Identity reconciliations by outcome",
			},
			[]string{"outcome"},
		),

		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_rate_limited_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TokensIssuedTotal,
		m.TokenValidationsTotal,
		m.TokensSweptTotal,
		m.PartnerCallsTotal,
		m.PartnerCallDuration,
		m.HandoffsTotal,
		m.UsersReconciledTotal,
		m.RateLimitedTotal,
	)

	return m
}

// NewTestMetrics returns metrics registered against a private registry
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// ObservePartnerCall records one partner call
func (m *Metrics) ObservePartnerCall(operation, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.PartnerCallsTotal.WithLabelValues(operation, outcome).Inc()
	m.PartnerCallDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Handoff results
const (
	HandoffEstablished = "established"
	HandoffSkipped     = "skipped"
	HandoffFailed      = "failed"
)

// Reconciliation outcomes
const (
	ReconcileExisting = "existing"
	ReconcileCreated  = "created"
)

// ObserveTokenIssued counts one issued token
func (m *Metrics) ObserveTokenIssued() {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.Inc()
}

// ObserveValidation counts one validation attempt
func (m *Metrics) ObserveValidation(outcome string) {
	if m == nil {
		return
	}
	m.TokenValidationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSwept adds deleted expired tokens
func (m *Metrics) ObserveSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensSweptTotal.Add(float64(n))
}

// ObserveHandoff counts one inbound handoff
func (m *Metrics) ObserveHandoff(result string) {
	if m == nil {
		return
	}
	m.HandoffsTotal.WithLabelValues(result).Inc()
}

// ObserveReconciled counts one reconciled identity
func (m *Metrics) ObserveReconciled(created bool) {
	if m == nil {
		return
	}
	outcome := ReconcileExisting
	if created {
		outcome = ReconcileCreated
	}
	m.UsersReconciledTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimited counts one request rejected by limiter
func (m *Metrics) ObserveRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. routeName maps a request
// to a low-cardinality label (usually the mux path template).
func HTTPMetricsMiddleware(metrics *Metrics, routeName func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if routeName != nil {
				route = routeName(r)
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
