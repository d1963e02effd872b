package sso

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/ssobridge/pkg/accounts"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/validation"
)

// ErrInvalidIdentity is returned when an identity has no usable email
var ErrInvalidIdentity = errors.New("sso: identity requires a valid email")

// Reconciler maps identities from the partner onto local users. Existing
// users are never modified.
type Reconciler struct {
	users   *accounts.Store
	metrics *observability.Metrics
}

// NewReconciler creates an identity reconciler
func NewReconciler(users *accounts.Store, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{users: users, metrics: metrics}
}

// Reconcile returns the local user for id, creating one with an unusable
// password when none exists.
func (r *Reconciler) Reconcile(ctx context.Context, id Identity) (*accounts.User, error) {
	return r.findOrCreate(ctx, id, func() (string, error) {
		return accounts.UnusablePasswordHash(r.users.BcryptCost())
	})
}

// Mirror returns the local user for email, creating one whose password is
// the one the user chose on the partner.
func (r *Reconciler) Mirror(ctx context.Context, name, email, password string) (*accounts.User, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidIdentity)
	}
	return r.findOrCreate(ctx, Identity{Email: email, Name: name}, func() (string, error) {
		return accounts.HashPassword(password, r.users.BcryptCost())
	})
}

func (r *Reconciler) findOrCreate(ctx context.Context, id Identity, hash func() (string, error)) (*accounts.User, error) {
	email := accounts.NormalizeEmail(id.Email)
	if !validation.IsEmail(email) {
		return nil, ErrInvalidIdentity
	}

	// Most handoffs are for known users; skip the bcrypt work for them.
	u, err := r.users.FindByEmail(ctx, email)
	if err == nil {
		r.metrics.ObserveReconciled(false)
		return u, nil
	}
	if !errors.Is(err, accounts.ErrUserNotFound) {
		return nil, err
	}

	passwordHash, err := hash()
	if err != nil {
		return nil, err
	}

	u, created, err := r.users.FindOrCreate(ctx, email, id.Name, passwordHash)
	if err != nil {
		return nil, err
	}
	r.metrics.ObserveReconciled(created)
	if created {
		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"user_id": u.ID,
			"email":   u.Email,
		}).Info("local user created from partner identity")
	}
	return u, nil
}
