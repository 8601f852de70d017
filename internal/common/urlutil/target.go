package urlutil

import (
	"fmt"
	"net/netip"
	"net/url"
)

// ValidateTarget checks that rawURL can be traced: it must be an absolute
// http(s) URL, and unless allowPrivate is set its host must not be an IP
// literal in a loopback, private, link-local or unspecified range. Host
// names are not resolved.
func ValidateTarget(rawURL string, allowPrivate bool) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if !IsHTTP(rawURL) || parsed.Host == "" {
		return fmt.Errorf("URL %q must be absolute http or https", rawURL)
	}
	if allowPrivate {
		return nil
	}

	addr, err := netip.ParseAddr(parsed.Hostname())
	if err != nil {
		// Not an IP literal
		return nil
	}
	if IsPrivateAddr(addr) {
		return fmt.Errorf("URL %q points to private/reserved address %s", rawURL, addr)
	}
	return nil
}

// IsPrivateAddr reports whether addr is loopback, private, link-local,
// multicast or unspecified
func IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() ||
		cgnat.Contains(addr)
}

var cgnat = netip.MustParsePrefix("100.64.0.0/10")
