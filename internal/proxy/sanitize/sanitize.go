// Package sanitize rewrites Messages API payloads so each backend only
// sees fields it can honor. All transforms build new values or delete
// keys; none reorder or drop messages.
package sanitize

import (
	"encoding/json"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pysugar/claude-relay/internal/proxy/routing"
)

// reasoningModelMarkers are the model-name fragments whose native API
// accepts extended thinking parameters.
var reasoningModelMarkers = []string{"sonnet-3-7", "sonnet-4-5", "opus-4-5", "claude-3-7"}

// IsReasoningCapable reports whether thinking parameters may be forwarded.
// Only the native Anthropic backend honors them, and only on models that
// support extended thinking.
func IsReasoningCapable(backend routing.Backend, model string) bool {
	if backend != routing.BackendAnthropic {
		return false
	}
	lower := strings.ToLower(model)
	for _, marker := range reasoningModelMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// StripThinkingBlocks removes thinking and redacted_thinking blocks from
// every message with list content. Replayed thinking blocks are rejected
// upstream, so they never leave the proxy.
func StripThinkingBlocks(body map[string]interface{}) {
	messages, ok := body["messages"].([]interface{})
	if !ok {
		return
	}

	before := payloadSize(body)
	removed := 0
	for _, raw := range messages {
		msg, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		content, ok := msg["content"].([]interface{})
		if !ok {
			continue
		}
		kept := make([]interface{}, 0, len(content))
		for _, block := range content {
			if isThinkingBlock(block) {
				removed++
				continue
			}
			kept = append(kept, block)
		}
		if len(kept) != len(content) {
			msg["content"] = kept
		}
	}

	if removed > 0 {
		after := payloadSize(body)
		log.Infof("🧹 Stripped %d thinking block(s): %.1fKB → %.1fKB",
			removed, float64(before)/1024, float64(after)/1024)
	}
}

func isThinkingBlock(block interface{}) bool {
	m, ok := block.(map[string]interface{})
	if !ok {
		return false
	}
	t, _ := m["type"].(string)
	return t == "thinking" || t == "redacted_thinking"
}

func payloadSize(v interface{}) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}

// StripReasoningParams deletes the top-level thinking controls when the
// target cannot honor them.
func StripReasoningParams(body map[string]interface{}, reasoningCapable bool, model string) {
	if reasoningCapable {
		return
	}
	for _, param := range []string{"thinking", "effort"} {
		if _, ok := body[param]; ok {
			delete(body, param)
			log.Infof("🧹 Removed '%s' param (not supported by %s)", param, model)
		}
	}
}

// topLevelKeys is everything a strict Anthropic-compatible backend accepts.
var topLevelKeys = []string{
	"model", "messages", "system", "tools", "tool_choice", "max_tokens",
	"stream", "temperature", "top_p", "top_k", "stop_sequences",
}

// SanitizeForCustom projects the payload onto the whitelist the custom
// backend accepts. The input is never mutated; unknown keys and block
// fields simply do not appear in the result. Message count and order are
// preserved.
func SanitizeForCustom(body map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(topLevelKeys))
	for _, key := range topLevelKeys {
		value, ok := body[key]
		if !ok {
			continue
		}
		switch key {
		case "system":
			out[key] = sanitizeSystem(value)
		case "tools":
			out[key] = sanitizeTools(value)
		case "messages":
			out[key] = sanitizeMessages(value)
		default:
			out[key] = value
		}
	}
	return out
}

func sanitizeSystem(system interface{}) interface{} {
	blocks, ok := system.([]interface{})
	if !ok {
		// A plain string system prompt passes through.
		return system
	}
	sanitized := make([]interface{}, 0, len(blocks))
	for _, raw := range blocks {
		block, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		projected := map[string]interface{}{}
		for _, key := range []string{"type", "text"} {
			if v, ok := block[key]; ok {
				projected[key] = v
			}
		}
		sanitized = append(sanitized, projected)
	}
	return sanitized
}

func sanitizeTools(tools interface{}) interface{} {
	list, ok := tools.([]interface{})
	if !ok {
		return tools
	}
	sanitized := make([]interface{}, 0, len(list))
	for _, raw := range list {
		tool, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		projected := map[string]interface{}{}
		for _, key := range []string{"name", "description", "input_schema", "type"} {
			if v, ok := tool[key]; ok {
				projected[key] = v
			}
		}
		sanitized = append(sanitized, projected)
	}
	return sanitized
}

func sanitizeMessages(messages interface{}) interface{} {
	list, ok := messages.([]interface{})
	if !ok {
		return messages
	}
	sanitized := make([]interface{}, 0, len(list))
	for _, raw := range list {
		msg, ok := raw.(map[string]interface{})
		if !ok {
			sanitized = append(sanitized, raw)
			continue
		}
		projected := map[string]interface{}{"role": msg["role"]}
		if content, ok := msg["content"]; ok {
			if blocks, ok := content.([]interface{}); ok {
				cleaned := make([]interface{}, 0, len(blocks))
				for _, b := range blocks {
					cleaned = append(cleaned, sanitizeContentBlock(b))
				}
				projected["content"] = cleaned
			} else {
				projected["content"] = content
			}
		}
		sanitized = append(sanitized, projected)
	}
	return sanitized
}

func sanitizeContentBlock(raw interface{}) interface{} {
	block, ok := raw.(map[string]interface{})
	if !ok {
		return raw
	}
	btype, _ := block["type"].(string)
	switch btype {
	case "text":
		text, _ := block["text"].(string)
		return map[string]interface{}{"type": "text", "text": text}

	case "tool_use":
		return map[string]interface{}{
			"type":  "tool_use",
			"id":    stringOr(block["id"], ""),
			"name":  stringOr(block["name"], ""),
			"input": normalizeToolInput(block["input"]),
		}

	case "tool_result":
		result := map[string]interface{}{
			"type":        "tool_result",
			"tool_use_id": stringOr(block["tool_use_id"], ""),
		}
		switch content := block["content"].(type) {
		case []interface{}:
			nested := make([]interface{}, 0, len(content))
			for _, b := range content {
				nested = append(nested, sanitizeContentBlock(b))
			}
			result["content"] = nested
		case nil:
			result["content"] = ""
		default:
			result["content"] = content
		}
		if isError, ok := block["is_error"]; ok {
			result["is_error"] = isError
		}
		return result

	case "image":
		source := block["source"]
		if source == nil {
			source = map[string]interface{}{}
		}
		return map[string]interface{}{"type": "image", "source": source}

	default:
		return map[string]interface{}{"type": block["type"]}
	}
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

// normalizeToolInput coerces a tool_use input to an object. Some backends
// emit the input as a JSON-encoded string; anything unparsable becomes {}.
func normalizeToolInput(input interface{}) interface{} {
	s, ok := input.(string)
	if !ok {
		if input == nil {
			return map[string]interface{}{}
		}
		return input
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return map[string]interface{}{}
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil || parsed == nil {
		return map[string]interface{}{}
	}
	return parsed
}
