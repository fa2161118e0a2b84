package sanitize

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestRepairLineFixesStringToolInput(t *testing.T) {
	line := `data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"x","name":"get_weather","input":"{\"location\": \"SF\"}"}}`

	repaired := RepairLine(line)

	var event map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(repaired, "data: ")), &event); err != nil {
		t.Fatalf("repaired line is not valid JSON: %v", err)
	}
	block := event["content_block"].(map[string]interface{})
	input, ok := block["input"].(map[string]interface{})
	if !ok {
		t.Fatalf("input = %T, want object", block["input"])
	}
	if input["location"] != "SF" {
		t.Errorf("input = %v", input)
	}
	if event["index"] != float64(0) {
		t.Error("sibling fields must survive the repair")
	}
}

func TestRepairLineFixesDeltaAndMessageContent(t *testing.T) {
	line := `data: {"type":"message_start","delta":{"type":"tool_use","input":"{}"},"message":{"content":[{"type":"tool_use","input":"{\"a\":1}"},{"type":"text","text":"hi"}]}}`

	var event map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(RepairLine(line), "data: ")), &event); err != nil {
		t.Fatalf("parse repaired: %v", err)
	}
	delta := event["delta"].(map[string]interface{})
	if _, ok := delta["input"].(map[string]interface{}); !ok {
		t.Errorf("delta input = %T, want object", delta["input"])
	}
	content := event["message"].(map[string]interface{})["content"].([]interface{})
	first := content[0].(map[string]interface{})
	if input, ok := first["input"].(map[string]interface{}); !ok || input["a"] != float64(1) {
		t.Errorf("message content input = %v", first["input"])
	}
}

func TestRepairLinePassthrough(t *testing.T) {
	lines := []string{
		"data: [DONE]",
		"event: content_block_start",
		"",
		": keep-alive",
		"data: not json {",
		`data: {"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{\"loc"}}`,
		`data: {"type":"content_block_start","content_block":{"type":"tool_use","input":{"already":"object"}}}`,
	}
	for _, line := range lines {
		if got := RepairLine(line); got != line {
			t.Errorf("RepairLine(%q) = %q, want passthrough", line, got)
		}
	}
}

func TestRepairLineIdempotent(t *testing.T) {
	line := `data: {"type":"content_block_start","content_block":{"type":"tool_use","id":"x","name":"n","input":"{\"k\":\"v\"}"}}`
	once := RepairLine(line)
	twice := RepairLine(once)
	if once != twice {
		t.Errorf("repair is not idempotent:\nonce  %s\ntwice %s", once, twice)
	}
}

func TestRepairStream(t *testing.T) {
	src := strings.Join([]string{
		"event: content_block_start",
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"x","name":"n","input":"{\"a\":1}"}}`,
		"",
		"event: message_stop",
		`data: {"type":"message_stop"}`,
		"",
		"data: [DONE]",
	}, "\n") + "\n"

	var dst bytes.Buffer
	flushes := 0
	if err := RepairStream(&dst, strings.NewReader(src), func() { flushes++ }); err != nil {
		t.Fatalf("RepairStream() error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(dst.String(), "\n"), "\n")
	if len(lines) != 7 {
		t.Fatalf("line count = %d, want 7", len(lines))
	}
	if lines[0] != "event: content_block_start" {
		t.Errorf("event line altered: %q", lines[0])
	}
	if lines[2] != "" || lines[5] != "" {
		t.Error("blank separator lines must be preserved")
	}
	if lines[6] != "data: [DONE]" {
		t.Errorf("terminator altered: %q", lines[6])
	}
	if !strings.Contains(lines[1], `"input":{"a":1}`) {
		t.Errorf("tool input not repaired: %s", lines[1])
	}
	if flushes != 7 {
		t.Errorf("flush count = %d, want one per line", flushes)
	}
}
