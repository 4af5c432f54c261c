package app

import (
	"net/url"
	"strings"
)

// extractOriginHost returns the "host[:port]" portion of an origin URL.
func extractOriginHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// matchOriginPattern reports whether host matches the given wildcard pattern.
func matchOriginPattern(pattern, host string) bool {
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:]
		return strings.HasSuffix(host, suffix)
	}
	if strings.HasSuffix(pattern, ":*") {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(host, prefix)
	}
	return false
}

// originChecker builds the shared allow function used by both the CORS
// layer and the WebSocket upgrader.
func originChecker(patterns []string, allowAll bool) func(string) bool {
	if allowAll || len(patterns) == 0 {
		return func(string) bool { return true }
	}
	return func(origin string) bool {
		host := extractOriginHost(origin)
		for _, pattern := range patterns {
			if matchOriginPattern(pattern, host) {
				return true
			}
		}
		return false
	}
}
