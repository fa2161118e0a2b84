package handlers

import (
	"net/http"

	"github.com/pysugar/claude-relay/internal/logging"
)

// LogsHandler returns the buffered log lines, oldest first.
func LogsHandler(ring *logging.Ring) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"logs": ring.Entries()})
	}
}

// ClearLogsHandler empties the log buffer.
func ClearLogsHandler(ring *logging.Ring) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ring.Clear()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}
