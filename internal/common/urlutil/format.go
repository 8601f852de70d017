package urlutil

import (
	"net/url"
	"strings"
)

// StripFragment removes everything from the first '#'
func StripFragment(rawURL string) string {
	if idx := strings.IndexByte(rawURL, '#'); idx != -1 {
		return rawURL[:idx]
	}
	return rawURL
}

// Normalize returns the key under which a URL is tracked:
// scheme://host[:port]/path?query with the fragment removed. Scheme and host
// are lowercased and an empty path becomes "/". Unparseable input is returned
// with only its fragment stripped.
func Normalize(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return StripFragment(rawURL)
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(parsed.Scheme))
	b.WriteString("://")
	b.WriteString(strings.ToLower(parsed.Host))
	b.WriteString(path)
	if parsed.RawQuery != "" || parsed.ForceQuery {
		b.WriteByte('?')
		b.WriteString(parsed.RawQuery)
	}
	return b.String()
}

// IsHTTP reports whether rawURL uses the http or https scheme
func IsHTTP(rawURL string) bool {
	scheme, _, ok := strings.Cut(rawURL, ":")
	if !ok {
		return false
	}
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}

// HasScheme reports whether rawURL carries any scheme at all
func HasScheme(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	return err == nil && parsed.Scheme != ""
}
