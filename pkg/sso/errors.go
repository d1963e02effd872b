package sso

import "errors"

var (
	// ErrTokenInvalid covers unknown, expired and already consumed tokens.
	// The three are never told apart.
	ErrTokenInvalid = errors.New("sso: invalid or expired token")

	// ErrSecretMismatch is returned when the caller's shared secret is wrong
	ErrSecretMismatch = errors.New("sso: shared secret mismatch")

	// ErrPartnerUnreachable wraps transport failures talking to the partner
	ErrPartnerUnreachable = errors.New("sso: partner unreachable")

	// ErrPartnerRejected is returned when the partner answered but refused
	ErrPartnerRejected = errors.New("sso: partner rejected request")

	// ErrUntrustedIssuer is returned when a callback names an issuer other
	// than the configured partner
	ErrUntrustedIssuer = errors.New("sso: issuer is not the configured partner")

	// ErrNoPartner is returned by partner calls when no partner is configured
	ErrNoPartner = errors.New("sso: no partner configured")
)
