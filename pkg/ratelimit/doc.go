// Package ratelimit throttles the credential and partner endpoints.
//
// MemoryLimiter keeps a token bucket per client in process; RedisLimiter
// counts fixed windows in redis so every replica shares the limit.
// Middleware applies either one per client address and answers 429 with a
// Retry-After header once the limit is spent:
//
//	limiter := ratelimit.NewMemoryLimiter(ratelimit.CredentialConfig())
//	router.Handle("/login", ratelimit.Middleware(limiter, ratelimit.Options{Name: "credentials"})(h))
//
// A limiter error lets the request through unless Options.FailClosed is set.
package ratelimit
