package httpx

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// DefaultIPv6Prefix groups IPv6 clients by their /64, the usual size of a
// single customer allocation.
const DefaultIPv6Prefix = 64

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes.
type KeyExtractor func(*http.Request) string

// ClientKeyConfig controls how a client address is turned into a key.
type ClientKeyConfig struct {
	// IPv6Prefix is the prefix length IPv6 addresses are masked to.
	IPv6Prefix int

	// TrustProxy enables X-Forwarded-For and X-Real-IP. Only turn this on
	// behind a proxy that overwrites them.
	TrustProxy bool
}

// ClientKeyExtractor keys IPv4 clients by address and IPv6 clients by
// subnet, so rotating through a prefix does not reset the limit.
func ClientKeyExtractor(cfg ClientKeyConfig) KeyExtractor {
	prefix := cfg.IPv6Prefix
	if prefix <= 0 || prefix > 128 {
		prefix = DefaultIPv6Prefix
	}

	return func(r *http.Request) string {
		if cfg.TrustProxy {
			if addr, ok := forwardedAddr(r); ok {
				return ClientKey(addr, prefix)
			}
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		addr, err := netip.ParseAddr(host)
		if err != nil {
			return host
		}
		return ClientKey(addr, prefix)
	}
}

// ClientKey returns the rate-limit key for addr.
func ClientKey(addr netip.Addr, ipv6Prefix int) string {
	addr = addr.Unmap().WithZone("")
	if addr.Is4() {
		return addr.String()
	}
	p, err := addr.Prefix(ipv6Prefix)
	if err != nil {
		return addr.String()
	}
	return p.String()
}

func forwardedAddr(r *http.Request) (netip.Addr, bool) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr, true
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr, true
		}
	}
	return netip.Addr{}, false
}
