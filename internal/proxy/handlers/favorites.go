package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/pysugar/claude-relay/internal/config"
)

// ListFavoritesHandler returns every saved routing snapshot.
func ListFavoritesHandler(store *config.FavoritesStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		favorites, err := store.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"favorites": favorites})
	}
}

// SaveFavoriteHandler stores a named snapshot of the six routing fields.
func SaveFavoriteHandler(store *config.FavoritesStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string                 `json:"name"`
			Config map[string]interface{} `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "Invalid JSON body: "+err.Error())
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "Name is required")
			return
		}
		for _, field := range config.FavoriteFields {
			if _, ok := req.Config[field]; !ok {
				writeError(w, http.StatusBadRequest, "invalid_request_error", "Missing field: "+field)
				return
			}
		}

		favorites, err := store.Add(name, req.Config)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		log.Infof("⭐ Saved new favorite: %s", name)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "success",
			"favorites": favorites,
		})
	}
}

// DeleteFavoriteHandler removes the snapshot at the given list index.
func DeleteFavoriteHandler(store *config.FavoritesStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "Invalid index")
			return
		}

		favorites, removed, err := store.Remove(index)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, "not_found_error", "Index out of range")
			return
		}
		log.Infof("🗑️ Deleted favorite at index %d", index)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "success",
			"favorites": favorites,
		})
	}
}
