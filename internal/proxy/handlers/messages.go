package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pysugar/claude-relay/internal/config"
	"github.com/pysugar/claude-relay/internal/db/models"
	"github.com/pysugar/claude-relay/internal/proxy/monitor"
	"github.com/pysugar/claude-relay/internal/proxy/routing"
	"github.com/pysugar/claude-relay/internal/proxy/sanitize"
	"github.com/pysugar/claude-relay/internal/upstream"
	"github.com/pysugar/claude-relay/internal/util"
)

// defaultModel stands in when a request omits the model field.
const defaultModel = "claude-sonnet-4-5-20250929"

// MessagesHandler proxies POST /v1/messages: classify the model, resolve
// its backend, rewrite the payload, and relay the upstream response.
func MessagesHandler(cfg *config.Config, store *config.RuntimeStore, client *upstream.Client, mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, raw, ok := readBody(w, r)
		if !ok {
			return
		}
		dispatch(w, r, cfg, store, client, mon, body, raw, "messages")
	}
}

// CountTokensHandler proxies POST /v1/messages/count_tokens. Only the native
// Anthropic backend supports it; every other target gets a 501.
func CountTokensHandler(cfg *config.Config, store *config.RuntimeStore, client *upstream.Client, mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, raw, ok := readBody(w, r)
		if !ok {
			return
		}

		model, _ := body["model"].(string)
		if model == "" {
			model = defaultModel
		}
		d := routing.Resolve(model, store.Get(), cfg)
		switch d.Backend {
		case routing.BackendAnthropic, routing.BackendMisconfigured:
			// Misconfigured still goes through dispatch so the client
			// sees the descriptive 503 instead of a bare 501.
			dispatch(w, r, cfg, store, client, mon, body, raw, "messages/count_tokens")
		default:
			writeError(w, http.StatusNotImplemented, "not_supported", "Not supported")
		}
	}
}

// readBody drains and parses the request body. An empty body is a valid
// empty object; malformed JSON is answered here with a 400.
func readBody(w http.ResponseWriter, r *http.Request) (map[string]interface{}, []byte, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return nil, nil, false
	}
	body := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "Invalid JSON body: "+err.Error())
			return nil, raw, false
		}
	}
	return body, raw, true
}

func dispatch(w http.ResponseWriter, r *http.Request, cfg *config.Config, store *config.RuntimeStore, client *upstream.Client, mon *monitor.Monitor, body map[string]interface{}, raw []byte, endpoint string) {
	start := time.Now()
	id := requestID(r)

	originalModel, _ := body["model"].(string)
	if originalModel == "" {
		originalModel = defaultModel
	}
	log.Infof("📨 Incoming request for model: %s", originalModel)

	d := routing.Resolve(originalModel, store.Get(), cfg)

	if d.Backend == routing.BackendMisconfigured {
		msg := fmt.Sprintf(
			"Provider '%s' is configured for %s but is missing required credentials "+
				"(API key and/or base URL). Please set the appropriate environment variables "+
				"in .env or switch to a different provider via the dashboard.",
			d.Provider, d.Tier)
		log.Errorf("❌ %s", msg)
		writeError(w, http.StatusServiceUnavailable, "configuration_error", msg)
		mon.Record(models.RequestLog{
			ID:          id,
			Method:      r.Method,
			URL:         r.URL.Path,
			Status:      http.StatusServiceUnavailable,
			Duration:    time.Since(start).Milliseconds(),
			Provider:    d.Provider,
			Tier:        string(d.Tier),
			Model:       originalModel,
			Error:       msg,
			RequestBody: util.TruncateBytes(raw),
		})
		return
	}

	sanitize.StripThinkingBlocks(body)
	reasoning := sanitize.IsReasoningCapable(d.Backend, d.Model)
	sanitize.StripReasoningParams(body, reasoning, d.Model)
	body["model"] = d.Model

	log.Infof("🔀 %s → %s (%s)", originalModel, d.Backend, d.Model)

	res := client.Forward(w, r, d, body, endpoint)

	mon.Record(models.RequestLog{
		ID:            id,
		Method:        r.Method,
		URL:           r.URL.Path,
		Status:        res.Status,
		Duration:      time.Since(start).Milliseconds(),
		Provider:      d.Provider,
		Tier:          string(d.Tier),
		Model:         originalModel,
		UpstreamModel: d.Model,
		Error:         res.Err,
		RequestBody:   util.TruncateBytes(raw),
		ResponseBody:  res.ResponseBody,
		InputTokens:   res.InputTokens,
		OutputTokens:  res.OutputTokens,
	})
}
