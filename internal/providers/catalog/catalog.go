// Package catalog tracks the model names each provider can serve. The
// dashboard uses these lists to populate its model pickers; routing never
// consults them. Compiled defaults keep the proxy usable with zero setup,
// and a YAML file can replace any provider's list without a rebuild.
package catalog

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pysugar/claude-relay/internal/proxy/routing"
)

// Catalog holds per-provider model lists keyed by backend name.
type Catalog struct {
	models map[string][]string
}

func defaultModels() map[string][]string {
	return map[string][]string{
		string(routing.BackendGeminiBridge): {
			"gemini-3-pro-high",
			"gemini-3-pro-low",
			"gemini-3-flash",
			"gemini-2.5-flash",
			"gemini-2.5-flash-lite",
			"gemini-2.5-pro",
			"claude-sonnet-4-5",
			"claude-opus-4-5",
		},
		string(routing.BackendGLM): {
			"glm-5",
			"glm-4.7",
		},
		string(routing.BackendAnthropic): {
			"claude-sonnet-4-5-20250929",
			"claude-haiku-4-5-20251001",
			"claude-3-5-haiku-20241022",
			"claude-opus-4-20250514",
			"claude-opus-4.6",
			"claude-3-7-sonnet-20250219",
		},
		string(routing.BackendCopilotBridge): {
			"gpt-4.1",
			"gpt-5-mini",
			"grok-code-fast-1",
			"raptor-mini",
			"claude-haiku-4.5",
			"claude-sonnet-4.5",
			"claude-opus-4.5",
			"gemini-3-flash-preview",
			"gemini-3-pro-preview",
			"gemini-2.5-pro",
			"gpt-5.1-codex-max",
			"gpt-5.1-codex-mini",
			"gpt-5.2-codex",
		},
		string(routing.BackendOpenRouter): {
			"anthropic/claude-sonnet-4.5",
			"anthropic/claude-haiku-4.5",
			"anthropic/claude-opus-4.5",
			"openai/gpt-4.1",
			"openai/gpt-4o",
			"openai/o1-preview",
			"openai/o1-mini",
			"google/gemini-2.5-pro",
			"google/gemini-2.5-flash",
			"deepseek/deepseek-chat",
			"meta-llama/llama-3.3-70b",
		},
	}
}

// Default returns a catalog with the compiled model lists.
func Default() *Catalog {
	return &Catalog{models: defaultModels()}
}

// Load builds a catalog from the compiled defaults plus any per-provider
// overrides found in the YAML file at path. An empty path means defaults
// only. On read or parse failure the returned catalog is still usable:
// callers can log the error and keep the defaults.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read model catalog: %w", err)
	}

	var overrides map[string][]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return c, fmt.Errorf("parse model catalog %s: %w", path, err)
	}

	applied := 0
	for backend, list := range overrides {
		if !routing.ValidBackend(backend) {
			log.Warnf("⚠️ Ignoring model list for unknown provider '%s' in %s", backend, path)
			continue
		}
		if len(list) == 0 {
			continue
		}
		c.models[backend] = append([]string(nil), list...)
		applied++
	}
	if applied > 0 {
		log.Infof("📚 Loaded model catalog overrides from %s (%d providers)", path, applied)
	}
	return c, nil
}

// Models returns a copy of every provider's model list.
func (c *Catalog) Models() map[string][]string {
	out := make(map[string][]string, len(c.models))
	for backend, list := range c.models {
		out[backend] = append([]string(nil), list...)
	}
	return out
}

// For returns a copy of one provider's model list.
func (c *Catalog) For(backend string) []string {
	return append([]string(nil), c.models[backend]...)
}
