package registry

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrEmptyURL is returned by ValidateURL for blank input.
	ErrEmptyURL = errors.New("url cannot be empty")
	// ErrInvalidURL is returned by ValidateURL when no scheme+host can be parsed.
	ErrInvalidURL = errors.New("invalid url")
)

// NormalizeURL ensures raw has an http(s) scheme and a trailing slash.
// It does not reject malformed hosts; use ValidateURL for that.
//
//	192.168.2.1          -> http://192.168.2.1/
//	https://sw1.lab/     -> https://sw1.lab/
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	if !hasHTTPScheme(u) {
		u = "http://" + u
	}
	return u
}

// ValidateURL rejects empty input and strings that do not parse into an
// http(s) scheme plus host. On success it returns the normalized URL.
func ValidateURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyURL
	}
	if i := strings.Index(raw, "://"); i >= 0 && !hasHTTPScheme(strings.TrimSpace(raw)) {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, strings.TrimSpace(raw[:i]))
	}
	normalized := NormalizeURL(raw)
	parsed, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}
	return normalized, nil
}

func hasHTTPScheme(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
