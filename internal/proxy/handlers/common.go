// Package handlers contains the HTTP handler factories for every route the
// relay serves: the Messages proxy itself plus the configuration, favorites,
// logs, usage, and request-history endpoints that drive the dashboard.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// requestID returns the client-supplied X-Request-ID or mints one. The ID
// becomes the request-history row key so clients can correlate.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return "relay-" + uuid.New().String()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the error body shape shared by every locally produced
// failure: {"error": {"type": ..., "message": ...}}.
func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}
