package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP rewrites RemoteAddr from X-Real-IP or the first
// X-Forwarded-For entry, but only for connections from a trusted proxy.
// Entries may be CIDRs or single addresses. Without trusted proxies the
// headers are ignored, so clients cannot spoof their address to dodge rate
// limiting.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	trusted := parsePrefixes(trustedCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if remote, ok := parseAddr(r.RemoteAddr); ok && isTrusted(remote, trusted) {
				if ip, ok := forwardedIP(r.Header); ok {
					r.RemoteAddr = ip.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parsePrefixes(cidrs []string) []netip.Prefix {
	var out []netip.Prefix
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if p, err := netip.ParsePrefix(cidr); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(cidr)
		if err != nil {
			slog.Warn("realip: invalid trusted proxy CIDR, skipping", "cidr", cidr, "error", err)
			continue
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

// forwardedIP prefers X-Real-IP and falls back to the client end of
// X-Forwarded-For. Values that are not IP addresses are ignored.
func forwardedIP(h http.Header) (netip.Addr, bool) {
	if rip := strings.TrimSpace(h.Get("X-Real-IP")); rip != "" {
		addr, err := netip.ParseAddr(rip)
		return addr, err == nil
	}
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		addr, err := netip.ParseAddr(strings.TrimSpace(first))
		return addr, err == nil
	}
	return netip.Addr{}, false
}

// parseAddr accepts "host:port" or a bare address.
func parseAddr(addr string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// extractIP returns the address part of RemoteAddr, or RemoteAddr itself.
func extractIP(remoteAddr string) string {
	if a, ok := parseAddr(remoteAddr); ok {
		return a.String()
	}
	return remoteAddr
}
