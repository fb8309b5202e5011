package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// debugHosts are accepted when Debug is on and no hosts are configured.
var debugHosts = []string{".localhost", "127.0.0.1", "[::1]"}

// newCommon rejects requests whose Host is not in AllowedHosts.
func newCommon(d Deps) (Middleware, error) {
	patterns := d.Settings.AllowedHosts
	if len(patterns) == 0 && d.Settings.Debug {
		patterns = debugHosts
	}
	logger := d.Logger

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			domain := hostDomain(r.Host)
			if domain == "" || !HostAllowed(domain, patterns) {
				logger.Warn("disallowed host", zap.String("host", r.Host), zap.String("path", r.URL.Path))
				http.Error(w, "Bad Request (400)", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// HostAllowed matches domain against patterns. "*" matches anything and a
// leading dot matches the domain itself and every subdomain.
func HostAllowed(domain string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		if pattern == "*" || pattern == domain {
			return true
		}
		if strings.HasPrefix(pattern, ".") &&
			(strings.HasSuffix(domain, pattern) || domain == pattern[1:]) {
			return true
		}
	}
	return false
}

// hostDomain lowercases host and strips the port and a trailing dot.
func hostDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(host, "[") {
		end := strings.Index(host, "]")
		if end < 0 {
			return ""
		}
		return host[:end+1]
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return strings.TrimSuffix(host, ".")
}
