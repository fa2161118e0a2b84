package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/pysugar/claude-relay/internal/auth/credentials"
	"github.com/pysugar/claude-relay/internal/config"
	"github.com/pysugar/claude-relay/internal/providers/catalog"
	"github.com/pysugar/claude-relay/internal/proxy/routing"
)

// GetConfigHandler returns the routing table along with which providers are
// ready to serve and the model lists the dashboard pickers offer.
func GetConfigHandler(cfg *config.Config, store *config.RuntimeStore, creds *credentials.Manager, cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		available := map[string]bool{
			"anthropic":      creds.HasCredentials(),
			"glm":            glmConfigured(cfg),
			"gemini_bridge":  cfg.GeminiBridge.Enabled,
			"copilot_bridge": cfg.CopilotBridge.Enabled,
			"openrouter":     cfg.OpenRouter.APIKey != "",
			"custom":         cfg.Custom.APIKey != "" && cfg.Custom.BaseURL != "",
		}

		models := cat.Models()
		models["custom"] = customModels(cfg)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"config":              store.Get(),
			"providers_available": available,
			"available_models":    models,
		})
	}
}

// UpdateConfigHandler applies a partial routing update: any subset of the
// six provider/model fields, with provider names validated up front.
func UpdateConfigHandler(store *config.RuntimeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		updates := map[string]interface{}{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &updates); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_error", "Invalid JSON body: "+err.Error())
				return
			}
		}

		for _, field := range []string{"sonnet_provider", "haiku_provider", "opus_provider"} {
			if v, ok := updates[field]; ok {
				name, _ := v.(string)
				if !routing.ValidBackend(name) {
					writeError(w, http.StatusBadRequest, "invalid_request_error",
						fmt.Sprintf("Invalid provider for %s. Must be one of: %v", field, routing.BackendNames()))
					return
				}
			}
		}

		changes := map[string]string{}
		for key, value := range updates {
			if s, ok := value.(string); ok {
				changes[key] = s
			}
		}
		updated := store.Update(changes)
		log.Infof("🔧 Updated routing configuration: %v", changes)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "success",
			"message": "Configuration updated successfully",
			"config":  updated,
		})
	}
}

func glmConfigured(cfg *config.Config) bool {
	for _, tier := range routing.Tiers {
		tc := cfg.GLM.For(string(tier))
		if tc.APIKey != "" && tc.BaseURL != "" {
			return true
		}
	}
	return false
}

// customModels assembles the custom provider's picker list from its
// configured tier models, deduplicated in sonnet/haiku/opus order.
func customModels(cfg *config.Config) []string {
	seen := map[string]bool{}
	models := []string{}
	for _, m := range []string{cfg.Custom.Models.Sonnet, cfg.Custom.Models.Haiku, cfg.Custom.Models.Opus} {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		models = append(models, m)
	}
	return models
}
