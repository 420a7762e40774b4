package webhook

import (
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	ErrInvalidScheme    = errors.New("only HTTPS allowed")
	ErrPrivateIP        = errors.New("private IP addresses not allowed")
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	ErrInvalidPort      = errors.New("only port 443 allowed")
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrEmptyHost        = errors.New("URL must have a host")
	ErrCredentialsInURL = errors.New("URL must not carry credentials")
)

// blockedPrefixes are never valid webhook destinations.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // link-local, cloud metadata
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// ValidationOptions relaxes target checks for local development.
type ValidationOptions struct {
	// AllowInsecure permits http, localhost and private addresses.
	AllowInsecure bool
	// LookupIP resolves hosts; net.LookupIP when nil.
	LookupIP func(host string) ([]net.IP, error)
}

// ValidateTargetURL applies the production rules.
func ValidateTargetURL(targetURL string) error {
	return ValidateTargetURLWithOptions(targetURL, ValidationOptions{})
}

// ValidateTargetURLWithOptions requires HTTPS on port 443 and refuses hosts
// that are, or currently resolve to, loopback or private addresses. The
// delivery client repeats the address check when it connects.
func ValidateTargetURLWithOptions(targetURL string, opts ValidationOptions) error {
	u, err := url.Parse(targetURL)
	if err != nil {
		return ErrInvalidURL
	}
	host := u.Hostname()

	switch {
	case u.User != nil:
		return ErrCredentialsInURL
	case opts.AllowInsecure && u.Scheme != "https" && u.Scheme != "http":
		return ErrInvalidScheme
	case !opts.AllowInsecure && u.Scheme != "https":
		return ErrInvalidScheme
	case host == "":
		return ErrEmptyHost
	case opts.AllowInsecure:
		return nil
	case isLocalHost(host):
		return ErrLocalhostBlocked
	case u.Port() != "" && u.Port() != "443":
		return ErrInvalidPort
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return ErrPrivateIP
		}
		return nil
	}

	lookup := opts.LookupIP
	if lookup == nil {
		lookup = net.LookupIP
	}
	ips, err := lookup(host)
	if err != nil {
		// Unresolvable now; the delivery attempt will fail and retry.
		return nil
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return ErrPrivateIP
		}
	}
	return nil
}

func isLocalHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	switch {
	case host == "localhost", host == "127.0.0.1", host == "::1":
		return true
	case strings.HasSuffix(host, ".localhost"), strings.HasSuffix(host, ".local"):
		return true
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return true
	}
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractHost returns only the host for logging. Paths and queries of
// webhook URLs often embed tokens.
func ExtractHost(targetURL string) string {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "(invalid)"
	}
	return u.Host
}
