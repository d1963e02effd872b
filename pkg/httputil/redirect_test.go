package httputil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeRedirectTarget(t *testing.T) {
	const (
		app      = "http://localhost:8000"
		partner  = "https://blog.example.com/"
		fallback = "/dashboard"
	)

	tests := []struct {
		raw  string
		want string
	}{
		{"", fallback},
		{"/orders/42?tab=items", "/orders/42?tab=items"},
		{"http://localhost:8000/dashboard", "http://localhost:8000/dashboard"},
		{"HTTPS://Blog.Example.com/dashboard", "HTTPS://Blog.Example.com/dashboard"},
		{"https://evil.example.com/dashboard", fallback},
		{"http://localhost:8001/dashboard", fallback},
		{"//evil.example.com", fallback},
		{"/\\evil.example.com", fallback},
		{"javascript:alert(1)", fallback},
		{"dashboard", fallback},
		{"/dash\r\nSet-Cookie: x", fallback},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeRedirectTarget(tt.raw, fallback, app, partner))
		})
	}
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://blog.example.com", Origin("https://Blog.example.com/a/b?c=d"))
	assert.Equal(t, "http://localhost:8000", Origin("http://localhost:8000"))
	assert.Equal(t, "", Origin("/relative"))
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://p/sso/callback", JoinURL("http://p/", "/sso/callback", nil))
	assert.Equal(t,
		"http://p/sso/callback?issuer=http%3A%2F%2Fa&token=t",
		JoinURL("http://p", "/sso/callback", url.Values{"token": {"t"}, "issuer": {"http://a"}}))
}
