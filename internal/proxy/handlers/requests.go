package handlers

import (
	"net/http"
	"strconv"

	"github.com/pysugar/claude-relay/internal/proxy/monitor"
)

// RequestLogsHandler returns recent request-history rows, newest first.
// Supports ?limit= and ?since_minutes= filters.
func RequestLogsHandler(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
				limit = l
			}
		}
		since := 0
		if sinceStr := r.URL.Query().Get("since_minutes"); sinceStr != "" {
			if s, err := strconv.Atoi(sinceStr); err == nil && s > 0 {
				since = s
			}
		}

		logs := mon.Logs(limit, since)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"logs":  logs,
			"count": len(logs),
		})
	}
}

// RequestStatsHandler returns the aggregate request counters.
func RequestStatsHandler(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, mon.Stats())
	}
}

// ClearRequestsHandler wipes the request history, memory and database both.
func ClearRequestsHandler(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := mon.Clear(); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to clear request history: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
