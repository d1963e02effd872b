// Package server assembles the HTTP surface of the bridge.
//
// New mounts the local auth routes (/register, /login, /logout, /dashboard)
// and the handoff routes (/sso/*, /api/sso/*) on one gorilla/mux router
// behind the request id, logging, recovery and body limit middleware.
// NewHealthMux serves /health, /health/live, /health/ready and /metrics on
// the separate health port. Run drives both servers with an errgroup and
// shuts them down together.
package server
