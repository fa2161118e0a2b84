package handlers

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/pysugar/claude-relay/internal/usage"
)

// UsageStatsHandler returns the aggregated token usage snapshot.
func UsageStatsHandler(tracker *usage.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tracker.Stats())
	}
}

// ResetUsageHandler zeroes all usage counters and persists the empty state.
func ResetUsageHandler(tracker *usage.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracker.Reset()
		log.Info("🧹 Usage statistics reset")
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": "Statistics reset successfully",
		})
	}
}
