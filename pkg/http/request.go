package http

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the identity used when no address can be determined
const UnknownClient = "unknown"

// IPConfig holds configuration for client identity extraction
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies

	// TrustForwardedHeaders honours X-Forwarded-For from any peer. Clients that
	// control their own headers can then choose their identity; enable only
	// behind a proxy that overwrites the header.
	TrustForwardedHeaders bool
}

// ExtractClientIP derives the client identity used to bucket rate limits.
//
// Flow:
// 1. If forwarded headers are trusted for this peer, take the first valid X-Forwarded-For entry
// 2. Then X-Real-IP
// 3. Fall back to RemoteAddr, or UnknownClient
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && (config.TrustForwardedHeaders || isTrustedProxy(remoteIP, config.TrustedProxies)) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && isValidIP(xri) {
			return xri
		}
	}

	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return UnknownClient
}

// isTrustedProxy checks if an IP address is within any of the trusted proxy CIDR ranges
func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
