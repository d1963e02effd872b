// Package session manages local browser sessions: an opaque random id in
// an HttpOnly cookie pointing at a server-side record in redis or in an
// in-process LRU.
package session
