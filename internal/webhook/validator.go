package webhook

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

var (
	ErrInvalidURL       = errors.New("invalid callback URL")
	ErrInvalidScheme    = errors.New("callback URL must use https")
	ErrEmptyHost        = errors.New("callback URL must have a host")
	ErrLocalhostBlocked = errors.New("callback URL must not target localhost")
	ErrPrivateIP        = errors.New("callback URL must not resolve to a private address")
	ErrInvalidPort      = errors.New("callback URL must use port 443")
)

var blockedNetworks = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"64:ff9b::/96",
	"64:ff9b:1::/48",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// ValidationOptions relaxes callback URL checks for local development.
type ValidationOptions struct {
	// AllowInsecure permits http, private addresses and any port.
	AllowInsecure bool
	// LookupIP resolves hostnames. Defaults to net.LookupIP.
	LookupIP func(host string) ([]net.IP, error)
}

// ValidateCallbackURL rejects callback targets that could reach internal
// infrastructure.
func ValidateCallbackURL(raw string, opts ValidationOptions) error {
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() {
		return ErrInvalidURL
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !opts.AllowInsecure {
			return ErrInvalidScheme
		}
	default:
		return ErrInvalidScheme
	}

	host := parsed.Hostname()
	if host == "" {
		return ErrEmptyHost
	}
	if opts.AllowInsecure {
		return nil
	}

	if isLocalhost(host) {
		return ErrLocalhostBlocked
	}
	if port := parsed.Port(); port != "" && port != "443" {
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
		// Unresolvable hosts fail at delivery time instead.
		return nil
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return ErrPrivateIP
		}
	}
	return nil
}

func isLocalhost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") ||
		host == "127.0.0.1" ||
		host == "::1"
}

// isBlockedIP also covers the IPv6 unspecified address and NAT64 prefixes,
// which can map back onto any IPv4 target.
func isBlockedIP(ip net.IP) bool {
	if ip.IsUnspecified() || ip.IsLoopback() || ip.IsMulticast() {
		return true
	}
	for _, n := range blockedNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ExtractHost returns only the host of a URL, for logging.
func ExtractHost(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "(invalid)"
	}
	return parsed.Host
}
