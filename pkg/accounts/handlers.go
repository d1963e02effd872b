package accounts

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/ssobridge/pkg/async"
	"github.com/platinummonkey/ssobridge/pkg/httputil"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/session"
	"github.com/platinummonkey/ssobridge/pkg/validation"
)

const (
	maxNameLength     = 255
	maxEmailLength    = 255
	minPasswordLength = 6
)

// Partner carries local authentication events over to the partner
// application.
type Partner interface {
	// LoginRedirect returns where to send the browser after a local login
	// or registration so the partner can establish its own session.
	LoginRedirect(ctx context.Context, u *User, returnTo string) (string, error)
	// LogoutRedirect returns where to send the browser after a local logout
	LogoutRedirect(returnTo string) string
	// PushRegistration mirrors a new local account on the partner
	PushRegistration(ctx context.Context, u *User, password string) error
}

// HandlerConfig holds the URLs the handlers redirect to
type HandlerConfig struct {
	// AppURL is this application's public base URL
	AppURL string
	// DashboardPath is where a user lands after logging in
	DashboardPath string
	// LoginPath is where a user lands after logging out
	LoginPath string
	// SyncTimeout bounds the registration push to the partner
	SyncTimeout time.Duration
}

// Handlers handles local registration, login, logout and dashboard requests
type Handlers struct {
	store    *Store
	sessions *session.Manager
	partner  Partner
	tasks    *async.Tracker
	cfg      HandlerConfig
}

// NewHandlers creates the local auth handlers. tasks tracks the partner
// pushes so shutdown can wait for them.
func NewHandlers(store *Store, sessions *session.Manager, partner Partner, tasks *async.Tracker, cfg HandlerConfig) *Handlers {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 5 * time.Second
	}
	if tasks == nil {
		tasks = &async.Tracker{}
	}
	return &Handlers{
		store:    store,
		sessions: sessions,
		partner:  partner,
		tasks:    tasks,
		cfg:      cfg,
	}
}

// RegisterRoutes registers local auth routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/register", h.register).Methods("POST")
	router.HandleFunc("/login", h.login).Methods("POST")
	router.HandleFunc("/logout", h.logout).Methods("POST")
	router.HandleFunc("/dashboard", h.dashboard).Methods("GET")
}

func (h *Handlers) dashboardURL() string {
	return httputil.JoinURL(h.cfg.AppURL, h.cfg.DashboardPath, nil)
}

func (h *Handlers) loginURL() string {
	return httputil.JoinURL(h.cfg.AppURL, h.cfg.LoginPath, nil)
}

// register handles POST /register
func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	fields, ok := httputil.ParseFieldsOrError(w, r)
	if !ok {
		return
	}

	name := fields.Get("name")
	email := NormalizeEmail(fields.Get("email"))
	password := fields.Raw("password")
	confirmation := fields.Raw("password_confirmation")

	v := validation.NewValidator()
	v.Required("name", name).MaxLength("name", name, maxNameLength)
	v.Required("email", email).Email("email", email).MaxLength("email", email, maxEmailLength)
	v.Required("password", password).MinLength("password", password, minPasswordLength).Confirmed("password", password, confirmation)
	if res := v.Result(); !res.IsValid() {
		httputil.WriteValidationErrors(w, res.Fields())
		return
	}

	logger := observability.FromContext(r.Context()).WithField("email", email)

	hash, err := HashPassword(password, h.store.BcryptCost())
	if err != nil {
		logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	user, err := h.store.Create(r.Context(), name, email, hash)
	if errors.Is(err, ErrEmailTaken) {
		v.Fail("email", validation.RuleUnique, "the email has already been taken")
		httputil.WriteValidationErrors(w, v.Result().Fields())
		return
	}
	if err != nil {
		logger.WithError(err).Error("failed to create user")
		httputil.WriteInternalError(w)
		return
	}
	logger.WithField("user_id", user.ID).Info("user registered")

	// The partner must hold the mirrored account before the browser is
	// handed over, or the handoff would create it without this password.
	// A slow or failing partner costs at most SyncTimeout and is only logged.
	h.tasks.Run(r.Context(), h.cfg.SyncTimeout, "partner user sync", func(ctx context.Context) error {
		return h.partner.PushRegistration(ctx, user, password)
	})

	h.completeLogin(w, r, user)
}

// login handles POST /login
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	fields, ok := httputil.ParseFieldsOrError(w, r)
	if !ok {
		return
	}

	email := fields.Get("email")
	password := fields.Raw("password")

	v := validation.NewValidator()
	v.Required("email", email).Email("email", email)
	v.Required("password", password)
	if res := v.Result(); !res.IsValid() {
		httputil.WriteValidationErrors(w, res.Fields())
		return
	}

	user, err := h.store.Authenticate(r.Context(), email, password)
	if errors.Is(err, ErrInvalidCredentials) {
		observability.FromContext(r.Context()).WithField("email", NormalizeEmail(email)).Info("login rejected")
		httputil.WriteUnauthorized(w, ErrInvalidCredentials.Error())
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to authenticate")
		httputil.WriteInternalError(w)
		return
	}

	h.completeLogin(w, r, user)
}

// completeLogin establishes the local session and hands the browser over
// to the partner.
func (h *Handlers) completeLogin(w http.ResponseWriter, r *http.Request, user *User) {
	logger := observability.FromContext(r.Context()).WithField("user_id", user.ID)

	if _, err := h.sessions.Regenerate(w, r, user.ID, user.Email); err != nil {
		logger.WithError(err).Error("failed to establish session")
		httputil.WriteInternalError(w)
		return
	}

	target, err := h.partner.LoginRedirect(r.Context(), user, h.dashboardURL())
	if err != nil {
		// No token means no redirect; the local session stands.
		logger.WithError(err).Error("failed to prepare partner handoff")
		httputil.WriteInternalError(w)
		return
	}
	httputil.Redirect(w, r, target)
}

// logout handles POST /logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w, r)
	httputil.Redirect(w, r, h.partner.LogoutRedirect(h.loginURL()))
}

// dashboard handles GET /dashboard
func (h *Handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(r)
	if !ok {
		httputil.WriteUnauthorized(w, "unauthenticated")
		return
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{"user": user})
}

// CurrentUser returns the user behind the request's session
func (h *Handlers) CurrentUser(r *http.Request) (*User, bool) {
	s, ok := h.sessions.Current(r)
	if !ok {
		return nil, false
	}

	user, err := h.store.FindByID(r.Context(), s.UserID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			observability.FromContext(r.Context()).WithError(err).Error("failed to load session user")
		}
		return nil, false
	}
	return user, true
}
