// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// normalizeOrigins splits the configured origins into exact origins and
// wildcard patterns. A lone "*" allows every origin.
func normalizeOrigins(origins []string) (exact, patterns []string, allowAll bool) {
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		if strings.Contains(trimmed, "*") {
			pattern := strings.ToLower(strings.TrimRight(trimmed, "/"))
			if _, err := path.Match(pattern, ""); err != nil {
				slog.Warn("Ignoring invalid origin pattern in configuration", "origin", origin, "error", err)
				continue
			}
			patterns = append(patterns, pattern)
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			slog.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}

		exact = append(exact, normalizedOrigin)
	}

	return exact, patterns, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

func isOriginAllowed(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")

	configMu.RLock()
	defer configMu.RUnlock()

	if originHeader == "" {
		return allowEmptyOrigin
	}

	normalizedOrigin, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if allowAllOrigins {
		return true
	}

	if _, exists := allowedOrigins[normalizedOrigin]; exists {
		return true
	}

	for _, pattern := range originPatterns {
		if matched, _ := path.Match(pattern, normalizedOrigin); matched {
			return true
		}
	}
	return false
}

func checkOrigin(r *http.Request) bool {
	if isOriginAllowed(r) {
		return true
	}

	slog.Warn("Blocked WebSocket connection from disallowed origin", "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
	return false
}
