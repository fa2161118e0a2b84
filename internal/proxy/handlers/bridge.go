package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pysugar/claude-relay/internal/config"
)

// TestBridgeHandler fires one minimal Messages request through the Gemini
// bridge so the dashboard can verify the whole path without a real client.
func TestBridgeHandler(cfg *config.Config) http.HandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}
	target := cfg.GeminiBridge.BaseURL() + "/v1/messages"

	return func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(map[string]interface{}{
			"model":      "gemini-3-flash",
			"messages":   []map[string]interface{}{{"role": "user", "content": "Say hello"}},
			"max_tokens": 100,
		})

		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", "test")
		req.Header.Set("anthropic-version", "2023-06-01")

		log.Info("🧪 Sending minimal test to Gemini bridge")
		resp, err := client.Do(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		log.Infof("🧪 Test response status: %d", resp.StatusCode)

		var body interface{} = string(raw)
		if resp.StatusCode == http.StatusOK {
			var parsed map[string]interface{}
			if err := json.Unmarshal(raw, &parsed); err == nil {
				body = parsed
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": resp.StatusCode,
			"body":   body,
		})
	}
}

// BridgeHealthProxyHandler relays the bridge's health endpoint so the
// dashboard can poll it from the browser without tripping CORS.
func BridgeHealthProxyHandler(cfg *config.Config) http.HandlerFunc {
	return statusProxy(cfg.GeminiBridge.BaseURL()+"/health", "Bridge health unavailable")
}

// CopilotUsageProxyHandler relays the Copilot bridge's usage endpoint,
// same CORS treatment as the bridge health proxy.
func CopilotUsageProxyHandler(cfg *config.Config) http.HandlerFunc {
	return statusProxy(cfg.CopilotBridge.BaseURL+"/usage", "Copilot usage unavailable")
}

func statusProxy(target, unavailable string) http.HandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := client.Get(target)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "internal_error", err.Error())
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			writeError(w, resp.StatusCode, "upstream_error", unavailable)
			return
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "internal_error", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}
