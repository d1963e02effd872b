package httputil

import (
	"net/url"
	"strings"
)

// SafeRedirectTarget returns raw when it is a same-site relative path or an
// absolute http(s) URL whose origin is one of allowedOrigins. Anything else,
// including scheme-relative and backslash-prefixed paths, yields fallback.
func SafeRedirectTarget(raw, fallback string, allowedOrigins ...string) string {
	if raw == "" || strings.ContainsAny(raw, "\r\n\t\\") {
		return fallback
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if u.Scheme == "" && u.Host == "" {
		if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
			return raw
		}
		return fallback
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fallback
	}

	for _, allowed := range allowedOrigins {
		if allowed != "" && Origin(allowed) == Origin(raw) {
			return raw
		}
	}
	return fallback
}

// Origin returns scheme://host[:port] of an absolute URL, lowercased, or ""
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// JoinURL appends path and query to a base URL, tolerating a trailing slash
// on base.
func JoinURL(base, path string, query url.Values) string {
	target := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}
