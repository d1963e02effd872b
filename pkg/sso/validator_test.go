package sso

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ssobridge/pkg/observability"
)

func newIssuerAndValidator(t *testing.T, store TokenStore) (*Issuer, *Validator, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewTestMetrics()
	return NewIssuer(store, 5*time.Minute, metrics), NewValidator(store, NewSecret(testSecret), metrics), metrics
}

func TestValidate_RoundTripReturnsIdentityUnmodified(t *testing.T) {
	issuer, validator, _ := newIssuerAndValidator(t, NewMemoryTokenStore())
	id := Identity{Email: "a@x.com", Name: "A"}

	tok, err := issuer.Issue(context.Background(), id)
	require.NoError(t, err)

	got, err := validator.Validate(context.Background(), tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestValidate_SingleUse(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			issuer, validator, metrics := newIssuerAndValidator(t, f.new(t))

			tok, err := issuer.Issue(context.Background(), Identity{Email: "a@x.com", Name: "A"})
			require.NoError(t, err)

			_, err = validator.Validate(context.Background(), tok, testSecret)
			require.NoError(t, err)

			for i := 0; i < 3; i++ {
				_, err = validator.Validate(context.Background(), tok, testSecret)
				assert.ErrorIs(t, err, ErrTokenInvalid)
			}
			assert.Equal(t, 3.0, testutil.ToFloat64(metrics.TokenValidationsTotal.WithLabelValues(observability.OutcomeInvalid)))
		})
	}
}

func TestValidate_ConcurrentDoubleSpend(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			issuer, validator, _ := newIssuerAndValidator(t, f.new(t))

			tok, err := issuer.Issue(context.Background(), Identity{Email: "a@x.com", Name: "A"})
			require.NoError(t, err)

			var wins atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					if _, err := validator.Validate(context.Background(), tok, testSecret); err == nil {
						wins.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestValidate_ExpiredNeverConsumed(t *testing.T) {
	store := NewMemoryTokenStore()
	issuer, validator, _ := newIssuerAndValidator(t, store)

	tok, err := issuer.Issue(context.Background(), Identity{Email: "a@x.com"})
	require.NoError(t, err)

	validator.now = func() time.Time { return time.Now().UTC().Add(6 * time.Minute) }
	_, err = validator.Validate(context.Background(), tok, testSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidate_WrongSecretDoesNotConsume(t *testing.T) {
	issuer, validator, metrics := newIssuerAndValidator(t, NewMemoryTokenStore())

	tok, err := issuer.Issue(context.Background(), Identity{Email: "a@x.com", Name: "A"})
	require.NoError(t, err)

	for _, secret := range []string{"wrong", "", testSecret + "x"} {
		_, err = validator.Validate(context.Background(), tok, secret)
		assert.ErrorIs(t, err, ErrSecretMismatch)
	}

	id, err := validator.Validate(context.Background(), tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", id.Email)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.TokenValidationsTotal.WithLabelValues(observability.OutcomeSecretMismatch)))
}

func TestValidate_SecretCheckedBeforeLookup(t *testing.T) {
	store := &faultyStore{TokenStore: NewMemoryTokenStore(), consumeErr: errors.New("must not be called")}
	validator := NewValidator(store, NewSecret(testSecret), nil)

	_, err := validator.Validate(context.Background(), "anything", "wrong")
	assert.ErrorIs(t, err, ErrSecretMismatch)
}

func TestValidate_MalformedAndEmptyTokens(t *testing.T) {
	_, validator, _ := newIssuerAndValidator(t, NewMemoryTokenStore())

	for _, tok := range []string{"", "short", "' OR 1=1 --"} {
		_, err := validator.Validate(context.Background(), tok, testSecret)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	}
}

func TestValidate_StoreErrorIsDistinct(t *testing.T) {
	boom := errors.New("db down")
	store := &faultyStore{TokenStore: NewMemoryTokenStore(), consumeErr: boom}
	issuer := NewIssuer(store, time.Minute, nil)
	validator := NewValidator(store, NewSecret(testSecret), nil)

	tok, err := issuer.Issue(context.Background(), Identity{Email: "a@x.com"})
	require.NoError(t, err)

	_, err = validator.Validate(context.Background(), tok, testSecret)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTokenInvalid)
}
