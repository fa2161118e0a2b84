package sanitize

import (
	"strings"

	"github.com/pysugar/claude-relay/internal/proxy/routing"
)

// FilterBetaHeader prunes anthropic-beta feature tokens the target cannot
// honor. The header is parsed once into tokens; tokens are dropped, never
// rewritten. An empty result means the header should be omitted entirely.
func FilterBetaHeader(header string, backend routing.Backend, reasoningCapable bool) string {
	if header == "" {
		return ""
	}
	parts := strings.Split(header, ",")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		lower := strings.ToLower(token)
		if !reasoningCapable && (strings.Contains(lower, "thinking") || strings.Contains(lower, "effort")) {
			continue
		}
		// The bridge rejects thinking-related features outright.
		if backend == routing.BackendGeminiBridge && strings.HasPrefix(lower, "thinking") {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, ",")
}
