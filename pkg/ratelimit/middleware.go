package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/ssobridge/pkg/httputil"
	"github.com/platinummonkey/ssobridge/pkg/observability"
)

// Options configures Middleware
type Options struct {
	// Name labels metrics and logs, e.g. "credentials"
	Name string
	// TrustForwardedFor keys clients by the first X-Forwarded-For hop. Only
	// enable it behind a proxy that sets the header.
	TrustForwardedFor bool
	// FailClosed answers 503 when the limiter errors instead of letting the
	// request through.
	FailClosed bool
	Metrics    *observability.Metrics
}

type exceededResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// Middleware limits requests per client address
func Middleware(limiter Limiter, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r, opts.TrustForwardedFor)

			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				observability.FromContext(r.Context()).
					WithError(err).
					WithField("limiter", opts.Name).
					Error("rate limiter unavailable")
				if opts.FailClosed {
					httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "service temporarily unavailable")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				opts.Metrics.ObserveRateLimited(opts.Name)
				observability.FromContext(r.Context()).
					WithFields(map[string]interface{}{"limiter": opts.Name, "client": key}).
					Warn("rate limit exceeded")

				retry := retrySeconds(d.RetryAfter)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				_ = httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
					Error:      "rate limit exceeded",
					RetryAfter: retry,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// ClientIP returns the address a request is limited by
func ClientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
