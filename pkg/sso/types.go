package sso

import "time"

// Identity is the claim set a token carries across: enough to find or
// create the user on the far side.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Token is one issued handoff token as kept by a TokenStore
type Token struct {
	Value     string
	Identity  Identity
	ExpiresAt time.Time
	Consumed  bool
	CreatedAt time.Time
}

// Expired reports whether the token can no longer be consumed at now
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// ValidateRequest is the body of POST /api/sso/validate
type ValidateRequest struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

// ValidateResponse is the success body of POST /api/sso/validate
type ValidateResponse struct {
	Success bool      `json:"success"`
	User    *Identity `json:"user,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// SyncUserRequest is the body of POST /api/sso/sync-user
type SyncUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Secret   string `json:"secret"`
}

// SyncUserResponse is the success body of POST /api/sso/sync-user
type SyncUserResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
