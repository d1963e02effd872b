package sso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/ssobridge/pkg/observability"
)

// Validator checks a caller's secret and consumes a token on its behalf
type Validator struct {
	store     TokenStore
	secret    Secret
	generator *TokenGenerator
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewValidator creates a token validator
func NewValidator(store TokenStore, secret Secret, metrics *observability.Metrics) *Validator {
	return &Validator{
		store:     store,
		secret:    secret,
		generator: NewTokenGenerator(),
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Validate returns the identity bound to token, at most once per token.
//
// The secret is checked first; on mismatch the token is not looked at and
// stays consumable. Unknown, expired and consumed tokens all yield
// ErrTokenInvalid. Store failures are returned wrapped.
func (v *Validator) Validate(ctx context.Context, token, callerSecret string) (Identity, error) {
	if !v.secret.Matches(callerSecret) {
		v.metrics.ObserveValidation(observability.OutcomeSecretMismatch)
		return Identity{}, ErrSecretMismatch
	}

	if v.generator.ValidateTokenFormat(token) != nil {
		v.metrics.ObserveValidation(observability.OutcomeInvalid)
		return Identity{}, ErrTokenInvalid
	}

	id, err := v.store.Consume(ctx, token, v.now())
	switch {
	case errors.Is(err, ErrTokenInvalid):
		v.metrics.ObserveValidation(observability.OutcomeInvalid)
		return Identity{}, ErrTokenInvalid
	case err != nil:
		v.metrics.ObserveValidation(observability.OutcomeError)
		return Identity{}, fmt.Errorf("token validation failed: %w", err)
	}

	v.metrics.ObserveValidation(observability.OutcomeValid)
	return id, nil
}
