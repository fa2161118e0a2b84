// Package routing classifies incoming model names into tiers and resolves
// each tier to a concrete backend target.
package routing

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pysugar/claude-relay/internal/config"
)

// Tier is one of the three model size classes.
type Tier string

const (
	TierHaiku  Tier = "haiku"
	TierSonnet Tier = "sonnet"
	TierOpus   Tier = "opus"
)

// Tiers lists the classes in classification precedence order.
var Tiers = []Tier{TierHaiku, TierSonnet, TierOpus}

// Backend identifies where a request is forwarded.
type Backend string

const (
	BackendAnthropic     Backend = "anthropic"
	BackendGLM           Backend = "glm"
	BackendGeminiBridge  Backend = "gemini_bridge"
	BackendCopilotBridge Backend = "copilot_bridge"
	BackendOpenRouter    Backend = "openrouter"
	BackendCustom        Backend = "custom"

	// BackendMisconfigured means the selected provider is missing its
	// prerequisites; the request must fail with 503, never fall back.
	BackendMisconfigured Backend = "misconfigured"
)

// Backends lists the configurable backend names, in the order they are
// reported to clients.
var Backends = []Backend{
	BackendAnthropic,
	BackendGLM,
	BackendGeminiBridge,
	BackendCopilotBridge,
	BackendOpenRouter,
	BackendCustom,
}

// ValidBackend reports whether name is a configurable backend.
func ValidBackend(name string) bool {
	for _, b := range Backends {
		if string(b) == name {
			return true
		}
	}
	return false
}

// BackendNames returns the configurable backend names as strings.
func BackendNames() []string {
	names := make([]string, len(Backends))
	for i, b := range Backends {
		names[i] = string(b)
	}
	return names
}

// Decision is the resolved target for one request.
type Decision struct {
	Backend  Backend
	Provider string // provider name as configured for the tier
	Tier     Tier
	Model    string // outbound model name
	BaseURL  string
	APIKey   string
	SkipV1   bool
}

// ClassifyTier maps an incoming model name to a tier. Exact matches against
// the configured tier models win; then tier nicknames as substrings; then
// provider-family prefixes. Anything else lands on haiku with a warning.
func ClassifyTier(model string, rc config.RuntimeConfig) Tier {
	for _, tier := range Tiers {
		if m := rc.ModelFor(string(tier)); m != "" && m == model {
			return tier
		}
	}

	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "haiku"):
		return TierHaiku
	case strings.Contains(lower, "sonnet"):
		return TierSonnet
	case strings.Contains(lower, "opus"):
		return TierOpus
	}

	if strings.HasPrefix(lower, "glm-") || strings.HasPrefix(lower, "zai-") {
		if strings.Contains(lower, "flash") || strings.Contains(lower, "5") {
			return TierHaiku
		}
		return TierSonnet
	}
	if strings.HasPrefix(lower, "gemini-") {
		if strings.Contains(lower, "flash") {
			return TierHaiku
		}
		return TierSonnet
	}

	log.Warnf("⚠️ Unrecognized model '%s', defaulting to haiku tier", model)
	return TierHaiku
}

// Resolve classifies the model and binds its tier to a backend target.
// A provider with missing prerequisites resolves to BackendMisconfigured;
// requests are never silently rerouted to another backend.
func Resolve(model string, rc config.RuntimeConfig, cfg *config.Config) Decision {
	tier := ClassifyTier(model, rc)
	provider := rc.ProviderFor(string(tier))

	d := Decision{Backend: Backend(provider), Provider: provider, Tier: tier}
	switch d.Backend {
	case BackendAnthropic:
		d.BaseURL = cfg.Anthropic.BaseURL
		d.Model = model

	case BackendGLM:
		creds := cfg.GLM.For(string(tier))
		if creds.APIKey == "" || creds.BaseURL == "" {
			d.Backend = BackendMisconfigured
			return d
		}
		d.BaseURL = creds.BaseURL
		d.APIKey = creds.APIKey
		d.Model = tierModel(rc, cfg, provider, tier)

	case BackendGeminiBridge:
		if !cfg.GeminiBridge.Enabled {
			d.Backend = BackendMisconfigured
			return d
		}
		d.BaseURL = cfg.GeminiBridge.BaseURL()
		d.Model = tierModel(rc, cfg, provider, tier)

	case BackendCopilotBridge:
		if !cfg.CopilotBridge.Enabled {
			d.Backend = BackendMisconfigured
			return d
		}
		d.BaseURL = cfg.CopilotBridge.BaseURL
		d.Model = tierModel(rc, cfg, provider, tier)

	case BackendOpenRouter:
		if cfg.OpenRouter.APIKey == "" {
			d.Backend = BackendMisconfigured
			return d
		}
		d.BaseURL = cfg.OpenRouter.BaseURL
		d.APIKey = cfg.OpenRouter.APIKey
		d.Model = tierModel(rc, cfg, provider, tier)

	case BackendCustom:
		if cfg.Custom.APIKey == "" || cfg.Custom.BaseURL == "" {
			d.Backend = BackendMisconfigured
			return d
		}
		d.BaseURL = cfg.Custom.BaseURL
		d.APIKey = cfg.Custom.APIKey
		d.SkipV1 = cfg.Custom.SkipV1
		d.Model = tierModel(rc, cfg, provider, tier)

	default:
		log.Warnf("⚠️ Unknown provider '%s' configured for %s tier", provider, tier)
		d.Backend = BackendMisconfigured
		return d
	}

	// Some clients tag models with a terminal-style suffix; upstreams reject it.
	d.Model = strings.ReplaceAll(d.Model, "[1m]", "")
	return d
}

func tierModel(rc config.RuntimeConfig, cfg *config.Config, provider string, tier Tier) string {
	if m := rc.ModelFor(string(tier)); m != "" {
		return m
	}
	return cfg.StaticModel(provider, string(tier))
}
