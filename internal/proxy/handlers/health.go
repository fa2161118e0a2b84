package handlers

import (
	"net/http"

	"github.com/pysugar/claude-relay/internal/auth/credentials"
	"github.com/pysugar/claude-relay/internal/bridge"
	"github.com/pysugar/claude-relay/internal/config"
	"github.com/pysugar/claude-relay/internal/proxy/routing"
)

// HealthHandler reports liveness plus a per-provider readiness summary and
// the current routing table. It is reachable without a proxy key.
func HealthHandler(cfg *config.Config, store *config.RuntimeStore, creds *credentials.Manager, sup *bridge.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := store.Get()

		glm := map[string]interface{}{}
		for _, tier := range routing.Tiers {
			t := string(tier)
			tc := cfg.GLM.For(t)
			glm[t] = map[string]interface{}{
				"model":        cfg.GLM.Models.For(t),
				"provider_set": tc.APIKey != "" && tc.BaseURL != "",
			}
		}

		// Bridge models are only reported for tiers actually routed there.
		bridgeModels := map[string]interface{}{}
		for _, tier := range routing.Tiers {
			t := string(tier)
			if rc.ProviderFor(t) == string(routing.BackendGeminiBridge) {
				bridgeModels[t] = cfg.GeminiBridge.Models.For(t)
			} else {
				bridgeModels[t] = nil
			}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"providers": map[string]interface{}{
				"anthropic": map[string]interface{}{
					"oauth_token_available": creds.HasCredentials(),
				},
				"glm": glm,
				"gemini_bridge": map[string]interface{}{
					"enabled": cfg.GeminiBridge.Enabled,
					"status":  sup.Status(),
					"port":    cfg.GeminiBridge.Port,
					"models":  bridgeModels,
				},
				"copilot_bridge": map[string]interface{}{
					"enabled": cfg.CopilotBridge.Enabled,
				},
				"openrouter": map[string]interface{}{
					"configured": cfg.OpenRouter.APIKey != "",
				},
				"custom": map[string]interface{}{
					"configured": cfg.Custom.APIKey != "" && cfg.Custom.BaseURL != "",
				},
			},
			"routing": map[string]string{
				"sonnet": rc.SonnetProvider,
				"haiku":  rc.HaikuProvider,
				"opus":   rc.OpusProvider,
			},
		})
	}
}
