// Package upstream sends resolved requests to their backend and relays
// the response, streamed or buffered, back to the client.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pysugar/claude-relay/internal/auth/credentials"
	"github.com/pysugar/claude-relay/internal/proxy/routing"
	"github.com/pysugar/claude-relay/internal/proxy/sanitize"
	"github.com/pysugar/claude-relay/internal/usage"
	"github.com/pysugar/claude-relay/internal/util"
)

// errorPeekLimit caps how much of an upstream error body goes to the log.
const errorPeekLimit = 500

// Client forwards Messages API calls to the backend named by a routing
// decision. One shared HTTP client applies the global timeout to
// streaming and buffered calls alike.
type Client struct {
	http    *http.Client
	creds   *credentials.Manager
	tracker *usage.Tracker
}

// NewClient builds the shared forwarding client.
func NewClient(timeout time.Duration, creds *credentials.Manager, tracker *usage.Tracker) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		tracker: tracker,
	}
}

// Result summarizes one forwarded exchange for request-history recording.
// Err is set only for failures the client already saw as an error body.
type Result struct {
	Status       int
	Streamed     bool
	ResponseBody string
	Err          string
	InputTokens  int64
	OutputTokens int64
}

// Forward sends body to the decision's backend at the given endpoint
// ("messages" or "messages/count_tokens") and writes the upstream
// response, or a locally shaped error, to w.
func (c *Client) Forward(w http.ResponseWriter, r *http.Request, d routing.Decision, body map[string]interface{}, endpoint string) Result {
	stream, _ := body["stream"].(bool)

	outBody := body
	if d.Backend == routing.BackendCustom {
		outBody = sanitize.SanitizeForCustom(body)
	}
	payload, err := json.Marshal(outBody)
	if err != nil {
		return c.fail(w, http.StatusInternalServerError, "internal_error", fmt.Sprintf("encode request body: %v", err))
	}
	if d.Backend == routing.BackendCustom {
		logCustomBreakdown(outBody, payload)
	}

	// Streaming requests ride the client's context so a disconnect stops
	// the upstream read; buffered requests run to completion.
	ctx := context.Background()
	if stream {
		ctx = r.Context()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL(d, endpoint), bytes.NewReader(payload))
	if err != nil {
		return c.fail(w, http.StatusInternalServerError, "internal_error", fmt.Sprintf("build upstream request: %v", err))
	}
	c.setHeaders(req.Header, d, r)

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(w, d, err)
	}
	defer resp.Body.Close()

	log.Infof("📥 [%s] Response status: %d", d.Backend, resp.StatusCode)
	if stream {
		return c.relayStream(w, resp, d)
	}
	return c.relayBuffered(w, resp, d)
}

// targetURL joins the backend base URL and endpoint, inserting the /v1
// segment unless the backend opts out.
func targetURL(d routing.Decision, endpoint string) string {
	base := strings.TrimRight(d.BaseURL, "/")
	if d.SkipV1 {
		return base + "/" + endpoint
	}
	return base + "/v1/" + endpoint
}

// setHeaders applies the backend's authentication scheme and the
// anthropic-version / anthropic-beta passthrough rules.
func (c *Client) setHeaders(h http.Header, d routing.Decision, r *http.Request) {
	h.Set("Content-Type", "application/json")

	version := r.Header.Get("anthropic-version")
	beta := sanitize.FilterBetaHeader(r.Header.Get("anthropic-beta"), d.Backend, sanitize.IsReasoningCapable(d.Backend, d.Model))

	switch d.Backend {
	case routing.BackendAnthropic:
		if token := c.creds.Token(); token != "" {
			h.Set("Authorization", "Bearer "+token)
		} else if auth := r.Header.Get("Authorization"); auth != "" {
			// No usable OAuth token; let the upstream judge whatever the
			// client brought.
			h.Set("Authorization", auth)
		}
		if beta != "" {
			log.Infof("📋 Forwarding beta: %s", beta)
		}

	case routing.BackendGLM:
		h.Set("x-api-key", d.APIKey)
		// GLM deployments take the full beta surface unfiltered.
		beta = r.Header.Get("anthropic-beta")

	case routing.BackendGeminiBridge:
		// The bridge authenticates its own Google accounts; the API key
		// is a fixed placeholder.
		h.Set("x-api-key", "test")
		version = "2023-06-01"

	case routing.BackendCopilotBridge:
		// Authentication happens inside the bridge process.
		h.Set("Authorization", "Bearer dummy")

	case routing.BackendOpenRouter:
		h.Set("Authorization", "Bearer "+d.APIKey)
		h.Set("HTTP-Referer", "https://claude-code-proxy.local")
		h.Set("X-Title", "Claude Code Proxy")

	case routing.BackendCustom:
		h.Set("x-api-key", d.APIKey)
	}

	if version != "" {
		h.Set("anthropic-version", version)
	}
	if beta != "" {
		h.Set("anthropic-beta", beta)
	}
}

// relayStream copies the upstream SSE body to the client as it arrives.
// Custom and bridge streams pass through the tool-input repairer; other
// backends are copied raw. Non-success bodies are logged and still
// forwarded with the upstream status.
func (c *Client) relayStream(w http.ResponseWriter, resp *http.Response, d routing.Decision) Result {
	body := io.Reader(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		peek := make([]byte, errorPeekLimit)
		n, _ := io.ReadFull(resp.Body, peek)
		log.Errorf("❌ [%s] Error response: %s", d.Backend, peek[:n])
		body = io.MultiReader(bytes.NewReader(peek[:n]), resp.Body)
	}

	copyResponseHeaders(w.Header(), resp.Header)
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	var err error
	if d.Backend == routing.BackendCustom || d.Backend == routing.BackendGeminiBridge {
		err = sanitize.RepairStream(w, body, flush)
	} else {
		err = copyWithFlush(w, body, flush)
	}
	if err != nil {
		// Status and headers are already out; most often the client hung
		// up mid-stream.
		log.Warnf("⚠️ [%s] Stream interrupted: %v", d.Backend, err)
		return Result{Status: resp.StatusCode, Streamed: true, Err: err.Error()}
	}
	return Result{Status: resp.StatusCode, Streamed: true}
}

// relayBuffered reads the whole upstream reply. Non-success bodies are
// forwarded verbatim; success bodies are parsed for the anthropic
// post-filter and usage accounting, then re-serialized.
func (c *Client) relayBuffered(w http.ResponseWriter, resp *http.Response, d routing.Decision) Result {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(w, d, err)
	}

	copyResponseHeaders(w.Header(), resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Errorf("❌ [%s] Error: %s", d.Backend, util.TruncateLog(string(raw), errorPeekLimit))
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(raw)
		return Result{Status: resp.StatusCode, ResponseBody: util.TruncateBytes(raw)}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// A 2xx that is not a JSON object; hand it over untouched.
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(raw)
		return Result{Status: resp.StatusCode, ResponseBody: util.TruncateBytes(raw)}
	}

	if d.Backend == routing.BackendAnthropic {
		stripResponseThinking(parsed)
	}

	res := Result{Status: resp.StatusCode}
	if u, ok := parsed["usage"].(map[string]interface{}); ok && len(u) > 0 {
		res.InputTokens = tokenCount(u["input_tokens"])
		res.OutputTokens = tokenCount(u["output_tokens"])
		c.tracker.Record(res.InputTokens, res.OutputTokens, string(d.Backend), d.Model, string(d.Tier))
	}

	out, err := json.Marshal(parsed)
	if err != nil {
		out = raw
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(out)
	res.ResponseBody = util.TruncateBytes(out)
	return res
}

// stripResponseThinking drops thinking blocks the native API may include
// in its reply; they never reach the client.
func stripResponseThinking(parsed map[string]interface{}) {
	content, ok := parsed["content"].([]interface{})
	if !ok || len(content) == 0 {
		return
	}
	kept := make([]interface{}, 0, len(content))
	for _, raw := range content {
		if block, ok := raw.(map[string]interface{}); ok {
			if t, _ := block["type"].(string); t == "thinking" || t == "redacted_thinking" {
				continue
			}
		}
		kept = append(kept, raw)
	}
	if len(kept) != len(content) {
		parsed["content"] = kept
		log.Info("🧹 Stripped thinking blocks from response")
	}
}

func tokenCount(v interface{}) int64 {
	f, _ := v.(float64)
	return int64(f)
}

// transportError maps client-side failures onto the local error
// taxonomy: timeouts to 504, everything else to 500.
func (c *Client) transportError(w http.ResponseWriter, d routing.Decision, err error) Result {
	if isTimeout(err) {
		msg := fmt.Sprintf("%s request timed out", d.Backend)
		if d.Backend == routing.BackendGeminiBridge {
			msg = "Gemini bridge timeout - your Google accounts may be rate-limited or expired. Run: npx gemini-claude-bridge@latest accounts add"
		}
		log.Errorf("⏱️ [%s] %v", d.Backend, err)
		return c.fail(w, http.StatusGatewayTimeout, "upstream_timeout", msg)
	}
	log.Errorf("❌ [%s] Request failed: %v", d.Backend, err)
	return c.fail(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func (c *Client) fail(w http.ResponseWriter, status int, errType, message string) Result {
	writeError(w, status, errType, message)
	return Result{Status: status, Err: message}
}

// writeError emits the error body shape shared across the proxy.
func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}

func isTimeout(err error) bool {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// copyWithFlush relays src in chunks, flushing after every write so
// events reach the client without buffering delays.
func copyWithFlush(w io.Writer, src io.Reader, flush func()) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// copyResponseHeaders mirrors upstream headers onto the client response,
// dropping hop-by-hop fields and the encoding/length headers the HTTP
// client already consumed.
func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		if shouldSkipResponseHeader(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func shouldSkipResponseHeader(key string) bool {
	switch http.CanonicalHeaderKey(key) {
	case "Content-Encoding", "Content-Length", "Transfer-Encoding",
		"Connection", "Keep-Alive", "Proxy-Connection", "Te", "Trailer",
		"Upgrade", "Proxy-Authenticate", "Proxy-Authorization":
		return true
	}
	return false
}

// logCustomBreakdown reports what the sanitized payload is made of, to
// make oversized-context failures against strict backends diagnosable.
func logCustomBreakdown(body map[string]interface{}, payload []byte) {
	sizeOf := func(v interface{}) int {
		if v == nil {
			return 0
		}
		b, err := json.Marshal(v)
		if err != nil {
			return 0
		}
		return len(b)
	}
	msgs, _ := body["messages"].([]interface{})
	log.Infof("📦 [custom] Payload breakdown: total=%dKB (system=%dKB, tools=%dKB, messages=%dKB [%d msgs])",
		len(payload)/1024, sizeOf(body["system"])/1024, sizeOf(body["tools"])/1024, sizeOf(body["messages"])/1024, len(msgs))
}
