package sso

import (
	"context"
	"time"
)

// TokenStore keeps issued handoff tokens.
//
// Consume must be a single atomic transition from unconsumed and unexpired
// to consumed. Concurrent Consume calls for the same token yield at most one
// success; every other call, and any call on an unknown or expired token,
// returns ErrTokenInvalid.
type TokenStore interface {
	Create(ctx context.Context, t *Token) error
	Consume(ctx context.Context, token string, now time.Time) (Identity, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
