package urlutil

import (
	"net/url"
	"strings"
)

// Hostname returns the lowercased host of rawURL without port or IPv6
// brackets. It is empty for relative or unparsable URLs.
func Hostname(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// SameSite reports whether two hostnames belong to the same site, meaning
// they are equal or one is a subdomain of the other. Empty hosts never match.
func SameSite(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}
