package sso

import (
	"crypto/rand"
	"fmt"
)

const (
	// TokenLength is the number of characters in a handoff token.
	// 64 characters from a 62-symbol alphabet carry about 381 bits.
	TokenLength = 64

	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// bytes at or above this are rejected to keep the draw unbiased
	maxUnbiasedByte = 256 - (256 % len(tokenAlphabet))
)

// TokenGenerator generates handoff tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new random alphanumeric token
func (tg *TokenGenerator) GenerateToken() (string, error) {
	out := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength)

	for len(out) < TokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == TokenLength {
				break
			}
		}
	}

	return string(out), nil
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if len(token) != TokenLength {
		return fmt.Errorf("token must be %d characters", TokenLength)
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return fmt.Errorf("token contains invalid character at %d", i)
		}
	}
	return nil
}
