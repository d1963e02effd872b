package sso

import (
	"context"
	"fmt"
	"net/url"

	"github.com/platinummonkey/ssobridge/pkg/accounts"
	"github.com/platinummonkey/ssobridge/pkg/httputil"
)

// Browser-facing handoff endpoints, identical on both applications
const (
	CallbackPath = "/sso/callback"
	LogoutPath   = "/sso/logout"
)

// OrchestratorConfig holds this application's URLs
type OrchestratorConfig struct {
	// AppURL is sent as the issuer so the partner knows where to validate
	AppURL string
	// DashboardPath is the landing page, on either application
	DashboardPath string
}

// Orchestrator drives the browser redirects between the two applications
// and the server-to-server calls behind them.
type Orchestrator struct {
	issuer     *Issuer
	partner    *PartnerClient
	reconciler *Reconciler
	cfg        OrchestratorConfig
}

// NewOrchestrator creates a handoff orchestrator
func NewOrchestrator(issuer *Issuer, partner *PartnerClient, reconciler *Reconciler, cfg OrchestratorConfig) *Orchestrator {
	if cfg.DashboardPath == "" {
		cfg.DashboardPath = "/dashboard"
	}
	return &Orchestrator{
		issuer:     issuer,
		partner:    partner,
		reconciler: reconciler,
		cfg:        cfg,
	}
}

var _ accounts.Partner = (*Orchestrator)(nil)

// HandoffURL issues a token for id and returns the partner callback URL
// that carries it, ending at returnTo. Without a partner it returns
// returnTo unchanged.
func (o *Orchestrator) HandoffURL(ctx context.Context, id Identity, returnTo string) (string, error) {
	if !o.partner.Configured() {
		return returnTo, nil
	}

	token, err := o.issuer.Issue(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to issue sso token: %w", err)
	}

	return httputil.JoinURL(o.partner.BaseURL(), CallbackPath, url.Values{
		"token":     {token},
		"issuer":    {o.cfg.AppURL},
		"return_to": {returnTo},
	}), nil
}

// LogoutURL returns the partner logout URL ending at returnTo, or returnTo
// itself when there is no partner.
func (o *Orchestrator) LogoutURL(returnTo string) string {
	if !o.partner.Configured() {
		return returnTo
	}
	return httputil.JoinURL(o.partner.BaseURL(), LogoutPath, url.Values{
		"return_to": {returnTo},
	})
}

// DashboardLink returns a fresh handoff URL landing on the partner's
// dashboard. It is empty when there is no partner.
func (o *Orchestrator) DashboardLink(ctx context.Context, id Identity) (string, error) {
	if !o.partner.Configured() {
		return "", nil
	}
	return o.HandoffURL(ctx, id, httputil.JoinURL(o.partner.BaseURL(), o.cfg.DashboardPath, nil))
}

// AcceptHandoff validates token with issuer and returns the matching local
// user, creating it if needed.
func (o *Orchestrator) AcceptHandoff(ctx context.Context, issuer, token string) (*accounts.User, error) {
	id, err := o.partner.ValidateToken(ctx, issuer, token)
	if err != nil {
		return nil, err
	}
	return o.reconciler.Reconcile(ctx, id)
}

// LoginRedirect implements accounts.Partner
func (o *Orchestrator) LoginRedirect(ctx context.Context, u *accounts.User, returnTo string) (string, error) {
	return o.HandoffURL(ctx, Identity{Email: u.Email, Name: u.Name}, returnTo)
}

// LogoutRedirect implements accounts.Partner
func (o *Orchestrator) LogoutRedirect(returnTo string) string {
	return o.LogoutURL(returnTo)
}

// PushRegistration implements accounts.Partner. It is a no-op without a
// partner.
func (o *Orchestrator) PushRegistration(ctx context.Context, u *accounts.User, password string) error {
	if !o.partner.Configured() {
		return nil
	}
	return o.partner.SyncUser(ctx, u.Name, u.Email, password)
}
