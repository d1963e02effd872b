package sso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/platinummonkey/ssobridge/pkg/httputil"
	"github.com/platinummonkey/ssobridge/pkg/observability"
)

const (
	// DefaultPartnerTimeout bounds every call to the partner
	DefaultPartnerTimeout = 5 * time.Second

	// ValidatePath and SyncUserPath are the partner's server-to-server API
	ValidatePath = "/api/sso/validate"
	SyncUserPath = "/api/sso/sync-user"

	maxPartnerResponseBytes = 64 << 10

	opValidate = "validate"
	opSyncUser = "sync_user"
)

// PartnerClient calls the partner application's server-to-server API. Calls
// are made once, without retries, under a short timeout.
type PartnerClient struct {
	baseURL string
	secret  Secret
	client  *http.Client
	metrics *observability.Metrics
}

// NewPartnerClient creates a client for the partner at baseURL. An empty
// baseURL gives a client whose calls fail with ErrNoPartner.
func NewPartnerClient(baseURL string, secret Secret, timeout time.Duration, metrics *observability.Metrics) *PartnerClient {
	if timeout <= 0 {
		timeout = DefaultPartnerTimeout
	}
	return &PartnerClient{
		baseURL: baseURL,
		secret:  secret,
		client: &http.Client{
			Timeout:   timeout,
			Transport: observability.TraceTransport(nil),
			// A redirect from the partner API is never followed; it would
			// carry the secret somewhere else.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		metrics: metrics,
	}
}

// Configured reports whether a partner URL is set
func (c *PartnerClient) Configured() bool {
	return c.baseURL != ""
}

// BaseURL returns the partner's base URL
func (c *PartnerClient) BaseURL() string {
	return c.baseURL
}

// Trusts reports whether issuer names the configured partner
func (c *PartnerClient) Trusts(issuer string) bool {
	if !c.Configured() {
		return false
	}
	origin := httputil.Origin(issuer)
	return origin != "" && origin == httputil.Origin(c.baseURL)
}

// ValidateToken asks the issuer to validate and consume token. The secret
// is only ever sent to the configured partner, so an issuer naming any
// other origin fails with ErrUntrustedIssuer before a request is made.
func (c *PartnerClient) ValidateToken(ctx context.Context, issuer, token string) (Identity, error) {
	if !c.Configured() {
		return Identity{}, ErrNoPartner
	}
	if !c.Trusts(issuer) {
		return Identity{}, fmt.Errorf("%w: %q", ErrUntrustedIssuer, issuer)
	}

	started := time.Now()
	var resp ValidateResponse
	status, err := c.post(ctx, opValidate, ValidatePath, ValidateRequest{
		Token:  token,
		Secret: c.secret.Reveal(),
	}, &resp)
	if err != nil {
		return Identity{}, err
	}

	if status < 200 || status > 299 || !resp.Success || resp.User == nil || resp.User.Email == "" {
		c.metrics.ObservePartnerCall(opValidate, observability.PartnerRejected, started)
		return Identity{}, fmt.Errorf("%w: partner answered %d", ErrTokenInvalid, status)
	}
	c.metrics.ObservePartnerCall(opValidate, observability.PartnerOK, started)
	return *resp.User, nil
}

// SyncUser pushes a newly registered user to the partner
func (c *PartnerClient) SyncUser(ctx context.Context, name, email, password string) error {
	if !c.Configured() {
		return ErrNoPartner
	}

	started := time.Now()
	var resp SyncUserResponse
	status, err := c.post(ctx, opSyncUser, SyncUserPath, SyncUserRequest{
		Name:     name,
		Email:    email,
		Password: password,
		Secret:   c.secret.Reveal(),
	}, &resp)
	if err != nil {
		return err
	}

	if status < 200 || status > 299 || !resp.Success {
		c.metrics.ObservePartnerCall(opSyncUser, observability.PartnerRejected, started)
		return fmt.Errorf("%w: partner answered %d", ErrPartnerRejected, status)
	}
	c.metrics.ObservePartnerCall(opSyncUser, observability.PartnerOK, started)
	return nil
}

// post sends body as JSON and decodes the reply into out. Transport
// failures are recorded and wrapped in ErrPartnerUnreachable; any answer
// is left for the caller to judge. A reply that is not JSON leaves out
// untouched.
func (c *PartnerClient) post(ctx context.Context, op, path string, body, out interface{}) (int, error) {
	started := time.Now()

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httputil.JoinURL(c.baseURL, path, nil), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := observability.GetRequestID(ctx); id != "" {
		req.Header.Set(httputil.RequestIDHeader, id)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObservePartnerCall(op, observability.PartnerUnreachable, started)
		return 0, fmt.Errorf("%w: %s: %w", ErrPartnerUnreachable, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPartnerResponseBytes))
	if err != nil {
		c.metrics.ObservePartnerCall(op, observability.PartnerUnreachable, started)
		return 0, fmt.Errorf("%w: %s: reading response: %w", ErrPartnerUnreachable, op, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		observability.FromContext(ctx).WithField("operation", op).WithField("status", resp.StatusCode).
			Debug("partner returned a non-JSON body")
	}
	return resp.StatusCode, nil
}
