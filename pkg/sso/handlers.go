package sso

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/ssobridge/pkg/accounts"
	"github.com/platinummonkey/ssobridge/pkg/httputil"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/session"
)

// HandlerConfig holds the URLs the handoff endpoints redirect to
type HandlerConfig struct {
	AppURL        string
	PartnerURL    string
	DashboardPath string
	LoginPath     string
}

// Handlers serves the handoff endpoints: the browser-facing callback and
// logout redirects, and the server-to-server validate and sync-user API.
type Handlers struct {
	orchestrator *Orchestrator
	validator    *Validator
	reconciler   *Reconciler
	secret       Secret
	sessions     *session.Manager
	users        *accounts.Store
	metrics      *observability.Metrics
	cfg          HandlerConfig
}

// NewHandlers creates the SSO handlers
func NewHandlers(
	orchestrator *Orchestrator,
	validator *Validator,
	reconciler *Reconciler,
	secret Secret,
	sessions *session.Manager,
	users *accounts.Store,
	metrics *observability.Metrics,
	cfg HandlerConfig,
) *Handlers {
	if cfg.DashboardPath == "" {
		cfg.DashboardPath = "/dashboard"
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	return &Handlers{
		orchestrator: orchestrator,
		validator:    validator,
		reconciler:   reconciler,
		secret:       secret,
		sessions:     sessions,
		users:        users,
		metrics:      metrics,
		cfg:          cfg,
	}
}

// RegisterRoutes registers SSO routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Browser redirects
	router.HandleFunc(CallbackPath, h.callback).Methods("GET")
	router.HandleFunc(LogoutPath, h.logout).Methods("GET")
	router.HandleFunc("/sso/link", h.link).Methods("GET")

	// Server-to-server, with the unprefixed paths kept as aliases
	router.HandleFunc(ValidatePath, h.validate).Methods("POST")
	router.HandleFunc("/sso/validate", h.validate).Methods("POST")
	router.HandleFunc(SyncUserPath, h.syncUser).Methods("POST")
	router.HandleFunc("/sso/sync-user", h.syncUser).Methods("POST")
}

// returnTarget honours return_to only for this application, the partner,
// or a relative path.
func (h *Handlers) returnTarget(r *http.Request, fallbackPath string) string {
	fallback := httputil.JoinURL(h.cfg.AppURL, fallbackPath, nil)
	return httputil.SafeRedirectTarget(r.URL.Query().Get("return_to"), fallback, h.cfg.AppURL, h.cfg.PartnerURL)
}

// callback handles GET /sso/callback?token=&issuer=&return_to=
//
// Every outcome is a redirect to the return target; failures only mean no
// local session is established.
func (h *Handlers) callback(w http.ResponseWriter, r *http.Request) {
	returnTo := h.returnTarget(r, h.cfg.DashboardPath)

	if _, ok := h.sessions.Current(r); ok {
		h.metrics.ObserveHandoff(observability.HandoffSkipped)
		httputil.Redirect(w, r, returnTo)
		return
	}

	q := r.URL.Query()
	token, issuer := q.Get("token"), q.Get("issuer")
	logger := observability.FromContext(r.Context()).WithField("issuer", issuer)

	if token == "" || issuer == "" {
		logger.Warn("sso callback without token or issuer")
		h.metrics.ObserveHandoff(observability.HandoffFailed)
		httputil.Redirect(w, r, returnTo)
		return
	}

	user, err := h.orchestrator.AcceptHandoff(r.Context(), issuer, token)
	if err != nil {
		logger.WithError(err).Warn("sso callback failed")
		h.metrics.ObserveHandoff(observability.HandoffFailed)
		httputil.Redirect(w, r, returnTo)
		return
	}

	if _, err := h.sessions.Regenerate(w, r, user.ID, user.Email); err != nil {
		logger.WithError(err).Error("sso callback could not establish session")
		h.metrics.ObserveHandoff(observability.HandoffFailed)
		httputil.Redirect(w, r, returnTo)
		return
	}

	logger.WithField("user_id", user.ID).Info("sso session established")
	h.metrics.ObserveHandoff(observability.HandoffEstablished)
	httputil.Redirect(w, r, returnTo)
}

// logout handles GET /sso/logout?return_to=
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w, r)
	httputil.Redirect(w, r, h.returnTarget(r, h.cfg.LoginPath))
}

// link handles GET /sso/link
func (h *Handlers) link(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Current(r)
	if !ok {
		httputil.WriteUnauthorized(w, "unauthenticated")
		return
	}

	user, err := h.users.FindByID(r.Context(), s.UserID)
	if errors.Is(err, accounts.ErrUserNotFound) {
		httputil.WriteUnauthorized(w, "unauthenticated")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load session user")
		httputil.WriteInternalError(w)
		return
	}

	link, err := h.orchestrator.DashboardLink(r.Context(), Identity{Email: user.Email, Name: user.Name})
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to build sso link")
		httputil.WriteInternalError(w)
		return
	}
	if link == "" {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "no partner application configured")
		return
	}

	_ = httputil.WriteSuccess(w, map[string]string{
		"sso_link":    link,
		"partner_url": h.cfg.PartnerURL,
	})
}

// validate handles POST /api/sso/validate
func (h *Handlers) validate(w http.ResponseWriter, r *http.Request) {
	fields, ok := httputil.ParseFieldsOrError(w, r)
	if !ok {
		return
	}

	id, err := h.validator.Validate(r.Context(), fields.Raw("token"), fields.Raw("secret"))
	logger := observability.FromContext(r.Context())
	switch {
	case errors.Is(err, ErrSecretMismatch):
		logger.Warn("sso validate called with wrong secret")
		httputil.WriteUnauthorized(w, "unauthorized")
		return
	case errors.Is(err, ErrTokenInvalid):
		logger.Info("sso validate rejected token")
		httputil.WriteUnauthorized(w, "invalid or expired token")
		return
	case err != nil:
		logger.WithError(err).Error("sso validate failed")
		httputil.WriteInternalError(w)
		return
	}

	_ = httputil.WriteSuccess(w, ValidateResponse{Success: true, User: &id})
}

// syncUser handles POST /api/sso/sync-user
func (h *Handlers) syncUser(w http.ResponseWriter, r *http.Request) {
	fields, ok := httputil.ParseFieldsOrError(w, r)
	if !ok {
		return
	}

	logger := observability.FromContext(r.Context())
	if !h.secret.Matches(fields.Raw("secret")) {
		logger.Warn("sso sync-user called with wrong secret")
		httputil.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.reconciler.Mirror(r.Context(), fields.Get("name"), fields.Get("email"), fields.Raw("password"))
	if errors.Is(err, ErrInvalidIdentity) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err != nil {
		logger.WithError(err).Error("sso sync-user failed")
		httputil.WriteInternalError(w)
		return
	}

	logger.WithField("user_id", user.ID).Info("user synced from partner")
	_ = httputil.WriteSuccess(w, SyncUserResponse{Success: true})
}
