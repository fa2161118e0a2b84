package sanitize

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	streamScanInitial = 64 * 1024
	streamScanMax     = 8 * 1024 * 1024
)

// RepairStream copies an SSE body from src to dst, repairing string-typed
// tool_use inputs record by record. Only the current record is ever held
// in memory. flush, when non-nil, runs after every line so records reach
// the client as they arrive.
func RepairStream(dst io.Writer, src io.Reader, flush func()) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, streamScanInitial), streamScanMax)
	for scanner.Scan() {
		if _, err := fmt.Fprintf(dst, "%s\n", RepairLine(scanner.Text())); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
	}
	return scanner.Err()
}

// RepairLine fixes one SSE line. Non-data lines, [DONE] markers, and
// records that parse but need no repair pass through byte-identical;
// unparsable data lines are forwarded untouched.
func RepairLine(line string) string {
	if line == "data: [DONE]" || !strings.HasPrefix(line, "data: ") {
		return line
	}

	var event map[string]interface{}
	if err := json.Unmarshal([]byte(line[len("data: "):]), &event); err != nil {
		return line
	}

	changed := false
	if block, ok := event["content_block"].(map[string]interface{}); ok {
		changed = repairToolInput(block) || changed
	}
	if delta, ok := event["delta"].(map[string]interface{}); ok {
		changed = repairToolInput(delta) || changed
	}
	if message, ok := event["message"].(map[string]interface{}); ok {
		if content, ok := message["content"].([]interface{}); ok {
			for _, raw := range content {
				if block, ok := raw.(map[string]interface{}); ok {
					changed = repairToolInput(block) || changed
				}
			}
		}
	}
	if !changed {
		return line
	}

	fixed, err := json.Marshal(event)
	if err != nil {
		return line
	}
	return "data: " + string(fixed)
}

// repairToolInput replaces a string-typed tool_use input with the parsed
// object, or {} when it will not parse. Reports whether a repair happened.
func repairToolInput(block map[string]interface{}) bool {
	if t, _ := block["type"].(string); t != "tool_use" {
		return false
	}
	input, ok := block["input"].(string)
	if !ok {
		return false
	}
	block["input"] = normalizeToolInput(input)
	return true
}
