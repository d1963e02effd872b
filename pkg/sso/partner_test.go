package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ssobridge/pkg/observability"
)

func partnerStub(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestPartnerClient_ValidateToken(t *testing.T) {
	srv, _ := partnerStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ValidatePath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req ValidateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tok", req.Token)
		assert.Equal(t, testSecret, req.Secret)

		_ = json.NewEncoder(w).Encode(ValidateResponse{Success: true, User: &Identity{Email: "a@x.com", Name: "A"}})
	})

	metrics := observability.NewTestMetrics()
	client := NewPartnerClient(srv.URL, NewSecret(testSecret), time.Second, metrics)

	id, err := client.ValidateToken(context.Background(), srv.URL+"/", "tok")
	require.NoError(t, err)
	assert.Equal(t, Identity{Email: "a@x.com", Name: "A"}, id)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PartnerCallsTotal.WithLabelValues(opValidate, observability.PartnerOK)))
}

func TestPartnerClient_ValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid or expired token"}`))
		}},
		{"success false", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false}`))
		}},
		{"no user", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true}`))
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>oops</html>`))
		}},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := partnerStub(t, tt.handler)
			metrics := observability.NewTestMetrics()
			client := NewPartnerClient(srv.URL, NewSecret(testSecret), time.Second, metrics)

			_, err := client.ValidateToken(context.Background(), srv.URL, "tok")
			assert.ErrorIs(t, err, ErrTokenInvalid)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PartnerCallsTotal.WithLabelValues(opValidate, observability.PartnerRejected)))
		})
	}
}

func TestPartnerClient_UntrustedIssuerGetsNoSecret(t *testing.T) {
	trusted, trustedCalls := partnerStub(t, func(w http.ResponseWriter, r *http.Request) {})
	attacker, attackerCalls := partnerStub(t, func(w http.ResponseWriter, r *http.Request) {})

	client := NewPartnerClient(trusted.URL, NewSecret(testSecret), time.Second, nil)

	_, err := client.ValidateToken(context.Background(), attacker.URL, "tok")
	assert.ErrorIs(t, err, ErrUntrustedIssuer)
	assert.Zero(t, attackerCalls.Load())
	assert.Zero(t, trustedCalls.Load())

	_, err = client.ValidateToken(context.Background(), "not a url", "tok")
	assert.ErrorIs(t, err, ErrUntrustedIssuer)
}

func TestPartnerClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	metrics := observability.NewTestMetrics()
	client := NewPartnerClient(url, NewSecret(testSecret), time.Second, metrics)

	_, err := client.ValidateToken(context.Background(), url, "tok")
	assert.ErrorIs(t, err, ErrPartnerUnreachable)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PartnerCallsTotal.WithLabelValues(opValidate, observability.PartnerUnreachable)))

	err = client.SyncUser(context.Background(), "A", "a@x.com", "pw")
	assert.ErrorIs(t, err, ErrPartnerUnreachable)
}

func TestPartnerClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv, _ := partnerStub(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client := NewPartnerClient(srv.URL, NewSecret(testSecret), 50*time.Millisecond, nil)

	started := time.Now()
	_, err := client.ValidateToken(context.Background(), srv.URL, "tok")
	assert.ErrorIs(t, err, ErrPartnerUnreachable)
	assert.Less(t, time.Since(started), time.Second)
}

func TestPartnerClient_SyncUser(t *testing.T) {
	var got SyncUserRequest
	srv, calls := partnerStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, SyncUserPath, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(SyncUserResponse{Success: true})
	})

	client := NewPartnerClient(srv.URL, NewSecret(testSecret), time.Second, nil)
	require.NoError(t, client.SyncUser(context.Background(), "Ann", "ann@x.com", "secret1"))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, SyncUserRequest{Name: "Ann", Email: "ann@x.com", Password: "secret1", Secret: testSecret}, got)
}

func TestPartnerClient_SyncUserRejected(t *testing.T) {
	srv, _ := partnerStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := NewPartnerClient(srv.URL, NewSecret(testSecret), time.Second, nil)
	err := client.SyncUser(context.Background(), "Ann", "ann@x.com", "secret1")
	assert.ErrorIs(t, err, ErrPartnerRejected)
}

func TestPartnerClient_DoesNotFollowRedirects(t *testing.T) {
	elsewhere, elsewhereCalls := partnerStub(t, func(w http.ResponseWriter, r *http.Request) {})
	srv, _ := partnerStub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, elsewhere.URL+ValidatePath, http.StatusTemporaryRedirect)
	})

	client := NewPartnerClient(srv.URL, NewSecret(testSecret), time.Second, nil)
	_, err := client.ValidateToken(context.Background(), srv.URL, "tok")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.Zero(t, elsewhereCalls.Load())
}

func TestPartnerClient_NotConfigured(t *testing.T) {
	client := NewPartnerClient("", NewSecret(testSecret), time.Second, nil)
	assert.False(t, client.Configured())
	assert.False(t, client.Trusts("http://anything"))

	_, err := client.ValidateToken(context.Background(), "http://anything", "tok")
	assert.ErrorIs(t, err, ErrNoPartner)
	assert.ErrorIs(t, client.SyncUser(context.Background(), "A", "a@x.com", "pw"), ErrNoPartner)
}
