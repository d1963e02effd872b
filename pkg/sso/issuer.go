package sso

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/ssobridge/pkg/observability"
)

// DefaultTokenTTL is how long an issued token can be consumed
const DefaultTokenTTL = 5 * time.Minute

// Issuer creates one-time tokens bound to a local user's identity
type Issuer struct {
	store     TokenStore
	generator *TokenGenerator
	ttl       time.Duration
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewIssuer creates a token issuer. ttl <= 0 means DefaultTokenTTL.
func NewIssuer(store TokenStore, ttl time.Duration, metrics *observability.Metrics) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		store:     store,
		generator: NewTokenGenerator(),
		ttl:       ttl,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Issue sweeps expired tokens, then stores and returns a fresh token for
// id. A failed sweep is logged and ignored; a failed insert is returned.
func (i *Issuer) Issue(ctx context.Context, id Identity) (string, error) {
	if strings.TrimSpace(id.Email) == "" {
		return "", fmt.Errorf("cannot issue sso token: identity has no email")
	}

	logger := observability.FromContext(ctx)
	now := i.now()

	if n, err := i.store.DeleteExpired(ctx, now); err != nil {
		logger.WithError(err).Warn("expired sso token sweep failed")
	} else {
		i.metrics.ObserveSwept(n)
	}

	value, err := i.generator.GenerateToken()
	if err != nil {
		return "", err
	}

	t := &Token{
		Value:     value,
		Identity:  id,
		ExpiresAt: now.Add(i.ttl),
		CreatedAt: now,
	}
	if err := i.store.Create(ctx, t); err != nil {
		return "", err
	}

	i.metrics.ObserveTokenIssued()
	logger.WithField("email", id.Email).Debug("sso token issued")
	return value, nil
}
