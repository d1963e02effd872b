// Package sso hands an authenticated browser session from one application
// to its partner with one-time tokens.
//
// # Login handoff
//
// After a local login the Orchestrator issues a token bound to the user's
// email and name and redirects the browser to the partner:
//
//	{partner}/sso/callback?token=...&issuer={app}&return_to=...
//
// The partner calls back server to server:
//
//	POST {issuer}/api/sso/validate {"token": "...", "secret": "..."}
//
// The Validator checks the shared secret in constant time, then consumes
// the token in one atomic store operation, so a token yields its identity
// at most once. The partner reconciles the identity to a local user
// (find-or-create by email, never updating), starts a session and
// redirects on to return_to. Any failure still redirects, just without a
// session.
//
// # Logout
//
// Logout is a redirect chain through {partner}/sso/logout?return_to=...,
// which ends the partner session and bounces the browser back.
//
// # Token stores
//
// SQLTokenStore (postgres or sqlite), RedisTokenStore (hash per token,
// Lua check-and-set) and MemoryTokenStore implement TokenStore. Expired
// tokens are deleted before each issue and on the Sweeper's cron schedule.
package sso
