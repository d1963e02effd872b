package accounts

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// unusablePasswordBytes is the entropy of passwords nobody is told
const unusablePasswordBytes = 32

// HashPassword hashes a plaintext password using bcrypt
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UnusablePasswordHash hashes a random password that is immediately
// discarded. Accounts created from a partner handoff get one so every user
// has a password without anyone knowing it.
func UnusablePasswordHash(cost int) (string, error) {
	b := make([]byte, unusablePasswordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return HashPassword(base64.RawURLEncoding.EncodeToString(b), cost)
}
