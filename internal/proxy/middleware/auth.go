// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// openPaths stay reachable without the proxy key so health checks and
// browser tab icons keep working.
var openPaths = map[string]bool{
	"/health":      true,
	"/favicon.ico": true,
}

// ProxyAuth enforces the shared proxy key when one is configured. The
// key may arrive as the key query parameter, the x-api-key header, the
// Authorization header (with or without a Bearer prefix), or the
// x-proxy-key header; the first location present is the one validated.
func ProxyAuth(apiKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || openPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if key, _ := providedKey(r); key != apiKey {
				log.Warnf("🔒 Rejected %s %s: invalid or missing proxy key", r.Method, r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"type":"authentication_error","message":"Invalid or missing Proxy API Key. Please provide the correct key via x-api-key header or ?key= query parameter."}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// providedKey extracts the first credential the request carries. Presence
// wins over value: an empty key in an earlier location is still the one
// validated.
func providedKey(r *http.Request) (string, bool) {
	if vals, ok := r.URL.Query()["key"]; ok && len(vals) > 0 {
		return vals[0], true
	}
	if vals := r.Header.Values("x-api-key"); len(vals) > 0 {
		return vals[0], true
	}
	if vals := r.Header.Values("Authorization"); len(vals) > 0 {
		auth := vals[0]
		if len(auth) >= 7 && strings.EqualFold(auth[:7], "Bearer ") {
			return auth[7:], true
		}
		return auth, true
	}
	if vals := r.Header.Values("x-proxy-key"); len(vals) > 0 {
		return vals[0], true
	}
	return "", false
}
