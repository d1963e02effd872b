package sso

import "crypto/subtle"

// Secret is the symmetric secret shared with the partner application
type Secret struct {
	value []byte
}

// NewSecret wraps a configured secret
func NewSecret(value string) Secret {
	return Secret{value: []byte(value)}
}

// Matches compares candidate in constant time. An empty candidate or an
// empty configured secret never matches.
func (s Secret) Matches(candidate string) bool {
	if len(s.value) == 0 || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare(s.value, []byte(candidate)) == 1
}

// Reveal returns the secret for outbound partner calls
func (s Secret) Reveal() string {
	return string(s.value)
}

func (s Secret) String() string {
	return "[redacted]"
}

func (s Secret) GoString() string {
	return "sso.Secret{[redacted]}"
}
