// Package config resolves static options from the environment and owns the
// two runtime-mutable stores: the routing configuration and the favorites
// list.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ServerConfig holds the listener and global request options.
type ServerConfig struct {
	Port           int     `koanf:"port"`
	TimeoutSeconds float64 `koanf:"timeout"`
	APIKey         string  `koanf:"api_key"`
	LogFile        string  `koanf:"log_file"`
}

// Timeout returns the global upstream request timeout.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds * float64(time.Second))
}

// TierCredentials is an API key and base URL pair configured for one tier.
type TierCredentials struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// TierModels maps the three tiers to a backend's default model names.
type TierModels struct {
	Haiku  string `koanf:"haiku"`
	Sonnet string `koanf:"sonnet"`
	Opus   string `koanf:"opus"`
}

// For returns the model configured for a tier name.
func (m TierModels) For(tier string) string {
	switch tier {
	case "haiku":
		return m.Haiku
	case "sonnet":
		return m.Sonnet
	case "opus":
		return m.Opus
	}
	return ""
}

// RoutingDefaults is the initial provider per tier, used to seed the
// runtime configuration when config.json does not exist yet.
type RoutingDefaults struct {
	Sonnet string `koanf:"sonnet"`
	Haiku  string `koanf:"haiku"`
	Opus   string `koanf:"opus"`
}

type AnthropicConfig struct {
	BaseURL string     `koanf:"base_url"`
	Models  TierModels `koanf:"models"`
}

// GLMConfig carries per-tier credentials so each tier can point at a
// different GLM-compatible deployment.
type GLMConfig struct {
	Haiku  TierCredentials `koanf:"haiku"`
	Sonnet TierCredentials `koanf:"sonnet"`
	Opus   TierCredentials `koanf:"opus"`
	Models TierModels      `koanf:"models"`
}

// For returns the credentials configured for a tier name.
func (g GLMConfig) For(tier string) TierCredentials {
	switch tier {
	case "haiku":
		return g.Haiku
	case "sonnet":
		return g.Sonnet
	case "opus":
		return g.Opus
	}
	return TierCredentials{}
}

type GeminiBridgeConfig struct {
	Enabled bool       `koanf:"enabled"`
	Port    int        `koanf:"port"`
	Models  TierModels `koanf:"models"`
}

// BaseURL returns the local bridge address.
func (g GeminiBridgeConfig) BaseURL() string {
	return fmt.Sprintf("http://localhost:%d", g.Port)
}

type CopilotBridgeConfig struct {
	Enabled bool       `koanf:"enabled"`
	BaseURL string     `koanf:"base_url"`
	Models  TierModels `koanf:"models"`
}

type OpenRouterConfig struct {
	APIKey  string     `koanf:"api_key"`
	BaseURL string     `koanf:"base_url"`
	Models  TierModels `koanf:"models"`
}

type CustomConfig struct {
	APIKey  string     `koanf:"api_key"`
	BaseURL string     `koanf:"base_url"`
	SkipV1  bool       `koanf:"skip_v1"`
	Models  TierModels `koanf:"models"`
}

// FilesConfig names the on-disk state files.
type FilesConfig struct {
	Config      string `koanf:"config"`
	Favorites   string `koanf:"favorites"`
	Usage       string `koanf:"usage"`
	Database    string `koanf:"database"`
	Credentials string `koanf:"credentials"`
	Models      string `koanf:"models"`
}

// Config is the static configuration resolved once at startup.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Routing       RoutingDefaults     `koanf:"routing"`
	Anthropic     AnthropicConfig     `koanf:"anthropic"`
	GLM           GLMConfig           `koanf:"glm"`
	GeminiBridge  GeminiBridgeConfig  `koanf:"gemini_bridge"`
	CopilotBridge CopilotBridgeConfig `koanf:"copilot_bridge"`
	OpenRouter    OpenRouterConfig    `koanf:"openrouter"`
	Custom        CustomConfig        `koanf:"custom"`
	Files         FilesConfig         `koanf:"files"`
}

// StaticModel returns the compiled-in default model for a provider/tier pair.
func (c *Config) StaticModel(provider, tier string) string {
	switch provider {
	case "anthropic":
		return c.Anthropic.Models.For(tier)
	case "glm":
		return c.GLM.Models.For(tier)
	case "gemini_bridge":
		return c.GeminiBridge.Models.For(tier)
	case "copilot_bridge":
		return c.CopilotBridge.Models.For(tier)
	case "openrouter":
		return c.OpenRouter.Models.For(tier)
	case "custom":
		return c.Custom.Models.For(tier)
	}
	return ""
}

// CredentialsPath returns the OAuth credentials file location,
// defaulting to ~/.claude/.credentials.json.
func (c *Config) CredentialsPath() string {
	if c.Files.Credentials != "" {
		return c.Files.Credentials
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".claude", ".credentials.json")
	}
	return filepath.Join(home, ".claude", ".credentials.json")
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":    8082,
		"server.timeout": 300.0,

		"routing.sonnet": "gemini_bridge",
		"routing.haiku":  "gemini_bridge",
		"routing.opus":   "anthropic",

		"anthropic.base_url":      "https://api.anthropic.com",
		"anthropic.models.sonnet": "claude-sonnet-4-5-20250929",
		"anthropic.models.haiku":  "claude-3-5-haiku-20241022",
		"anthropic.models.opus":   "claude-opus-4-20250514",

		"glm.models.haiku":  "glm-4.7",
		"glm.models.sonnet": "glm-4.7",
		"glm.models.opus":   "glm-4.7",

		"gemini_bridge.enabled":       false,
		"gemini_bridge.port":          8081,
		"gemini_bridge.models.sonnet": "gemini-3-pro-high",
		"gemini_bridge.models.haiku":  "gemini-3-flash",
		"gemini_bridge.models.opus":   "gemini-3-pro-high",

		"copilot_bridge.enabled":       false,
		"copilot_bridge.base_url":      "http://localhost:4141",
		"copilot_bridge.models.sonnet": "claude-sonnet-4.5",
		"copilot_bridge.models.haiku":  "claude-haiku-4.5",
		"copilot_bridge.models.opus":   "claude-opus-4.5",

		"openrouter.base_url":      "https://openrouter.ai/api",
		"openrouter.models.sonnet": "anthropic/claude-sonnet-4.5",
		"openrouter.models.haiku":  "anthropic/claude-haiku-4.5",
		"openrouter.models.opus":   "anthropic/claude-opus-4.5",

		"custom.skip_v1":       false,
		"custom.models.sonnet": "claude-sonnet-4.5",
		"custom.models.haiku":  "claude-haiku-4.5",
		"custom.models.opus":   "claude-opus-4.5",

		"files.config":    "config.json",
		"files.favorites": "favorites.json",
		"files.usage":     "token_usage.json",
		"files.database":  "relay.db",
	}
}

// envKeys maps environment variable names onto config keys. Variables not
// listed here are ignored.
var envKeys = map[string]string{
	"PROXY_PORT":      "server.port",
	"REQUEST_TIMEOUT": "server.timeout",
	"PROXY_API_KEY":   "server.api_key",
	"PROXY_LOG_FILE":  "server.log_file",

	"SONNET_PROVIDER": "routing.sonnet",
	"HAIKU_PROVIDER":  "routing.haiku",
	"OPUS_PROVIDER":   "routing.opus",

	"ANTHROPIC_BASE_URL":     "anthropic.base_url",
	"ANTHROPIC_SONNET_MODEL": "anthropic.models.sonnet",
	"ANTHROPIC_HAIKU_MODEL":  "anthropic.models.haiku",
	"ANTHROPIC_OPUS_MODEL":   "anthropic.models.opus",

	"HAIKU_PROVIDER_API_KEY":   "glm.haiku.api_key",
	"HAIKU_PROVIDER_BASE_URL":  "glm.haiku.base_url",
	"SONNET_PROVIDER_API_KEY":  "glm.sonnet.api_key",
	"SONNET_PROVIDER_BASE_URL": "glm.sonnet.base_url",
	"OPUS_PROVIDER_API_KEY":    "glm.opus.api_key",
	"OPUS_PROVIDER_BASE_URL":   "glm.opus.base_url",
	"GLM_HAIKU_MODEL":          "glm.models.haiku",
	"GLM_SONNET_MODEL":         "glm.models.sonnet",
	"GLM_OPUS_MODEL":           "glm.models.opus",

	"GEMINI_BRIDGE_ENABLED":      "gemini_bridge.enabled",
	"GEMINI_BRIDGE_PORT":         "gemini_bridge.port",
	"GEMINI_BRIDGE_SONNET_MODEL": "gemini_bridge.models.sonnet",
	"GEMINI_BRIDGE_HAIKU_MODEL":  "gemini_bridge.models.haiku",
	"GEMINI_BRIDGE_OPUS_MODEL":   "gemini_bridge.models.opus",

	"COPILOT_BRIDGE_ENABLED":      "copilot_bridge.enabled",
	"COPILOT_BRIDGE_BASE_URL":     "copilot_bridge.base_url",
	"COPILOT_BRIDGE_SONNET_MODEL": "copilot_bridge.models.sonnet",
	"COPILOT_BRIDGE_HAIKU_MODEL":  "copilot_bridge.models.haiku",
	"COPILOT_BRIDGE_OPUS_MODEL":   "copilot_bridge.models.opus",

	"OPENROUTER_API_KEY":      "openrouter.api_key",
	"OPENROUTER_BASE_URL":     "openrouter.base_url",
	"OPENROUTER_SONNET_MODEL": "openrouter.models.sonnet",
	"OPENROUTER_HAIKU_MODEL":  "openrouter.models.haiku",
	"OPENROUTER_OPUS_MODEL":   "openrouter.models.opus",

	"CUSTOM_PROVIDER_API_KEY":      "custom.api_key",
	"CUSTOM_PROVIDER_BASE_URL":     "custom.base_url",
	"CUSTOM_PROVIDER_SKIP_V1":      "custom.skip_v1",
	"CUSTOM_PROVIDER_SONNET_MODEL": "custom.models.sonnet",
	"CUSTOM_PROVIDER_HAIKU_MODEL":  "custom.models.haiku",
	"CUSTOM_PROVIDER_OPUS_MODEL":   "custom.models.opus",

	"CONFIG_FILE":             "files.config",
	"FAVORITES_FILE":          "files.favorites",
	"CLAUDE_CREDENTIALS_FILE": "files.credentials",
	"RELAY_DB_FILE":           "files.database",
	"RELAY_MODELS_FILE":       "files.models",
}

// zaiEnvKeys are accepted aliases for the GLM model variables. They load
// before envKeys so an explicit GLM_* value wins.
var zaiEnvKeys = map[string]string{
	"ZAI_HAIKU_MODEL":  "glm.models.haiku",
	"ZAI_SONNET_MODEL": "glm.models.sonnet",
	"ZAI_OPUS_MODEL":   "glm.models.opus",
}

// Load resolves the static configuration: compiled defaults, then an
// optional YAML file named by RELAY_CONFIG_FILE, then environment
// variables. A .env file in the working directory is honored.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv("RELAY_CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("ZAI_", ".", func(s string) string {
		return zaiEnvKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("load ZAI_* environment: %w", err)
	}
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
