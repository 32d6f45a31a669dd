// Package hostutil normalizes and vets CMS base URLs.
package hostutil

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Normalize turns a CMS host or URL into a base URL without a trailing
// slash. Bare loopback hosts get http://, everything else https://.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		scheme := "https://"
		host, _, _ := strings.Cut(raw, "/")
		if IsLocalhost(host) {
			scheme = "http://"
		}
		raw = scheme + raw
	}
	return strings.TrimRight(raw, "/")
}

// IsLocalhost reports whether host (optionally with a port) is a loopback
// name: localhost, *.localhost, 127.0.0.1 or [::1].
func IsLocalhost(host string) bool {
	if host == "" {
		return false
	}
	name := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		name = h
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		name = host[1 : len(host)-1]
	} else if strings.Count(host, ":") > 1 {
		// Unbracketed IPv6 is not a valid URL host.
		return false
	}

	name = strings.ToLower(name)
	return name == "localhost" ||
		strings.HasSuffix(name, ".localhost") ||
		name == "127.0.0.1" ||
		name == "::1"
}

// RequireSecureURL rejects plain http:// URLs unless they point at a
// loopback host. Empty input is allowed.
func RequireSecureURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid CMS URL %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return nil
	case "http":
		if IsLocalhost(u.Host) {
			return nil
		}
		return fmt.Errorf("refusing insecure http:// CMS URL %q (only loopback hosts may use http)", raw)
	default:
		return fmt.Errorf("unsupported CMS URL scheme %q", u.Scheme)
	}
}
