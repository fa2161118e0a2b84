package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func testDefaults() RuntimeConfig {
	return RuntimeConfig{
		SonnetProvider: "gemini_bridge",
		SonnetModel:    "gemini-3-pro-high",
		HaikuProvider:  "gemini_bridge",
		HaikuModel:     "gemini-3-flash",
		OpusProvider:   "anthropic",
		OpusModel:      "claude-opus-4-20250514",
	}
}

func TestRuntimeStoreCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	store, err := NewRuntimeStore(path, testDefaults())
	if err != nil {
		t.Fatalf("NewRuntimeStore() error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
	got := store.Get()
	if got.OpusProvider != "anthropic" {
		t.Errorf("opus provider = %q, want anthropic", got.OpusProvider)
	}
}

func TestRuntimeStoreLoadsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	seed := `{"sonnet_provider": "glm", "sonnet_model": "glm-5"}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	store, err := NewRuntimeStore(path, testDefaults())
	if err != nil {
		t.Fatalf("NewRuntimeStore() error: %v", err)
	}

	got := store.Get()
	if got.SonnetProvider != "glm" || got.SonnetModel != "glm-5" {
		t.Errorf("file values not applied: %+v", got)
	}
	// Fields absent from the file keep their defaults.
	if got.OpusProvider != "anthropic" {
		t.Errorf("opus provider = %q, want default anthropic", got.OpusProvider)
	}
}

func TestRuntimeStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	if _, err := NewRuntimeStore(path, testDefaults()); err == nil {
		t.Fatal("expected error for corrupt config file")
	}
}

func TestRuntimeStoreUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := NewRuntimeStore(path, testDefaults())
	if err != nil {
		t.Fatalf("NewRuntimeStore() error: %v", err)
	}

	updated := store.Update(map[string]string{
		"sonnet_provider": "openrouter",
		"sonnet_model":    "anthropic/claude-sonnet-4.5",
		"bogus_key":       "ignored",
	})
	if updated.SonnetProvider != "openrouter" {
		t.Errorf("sonnet provider = %q, want openrouter", updated.SonnetProvider)
	}
	if updated.LastUpdated == "" {
		t.Error("expected last_updated to be stamped")
	}

	// A fresh store sees the persisted change.
	reloaded, err := NewRuntimeStore(path, testDefaults())
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if got := reloaded.Get(); got.SonnetProvider != "openrouter" {
		t.Errorf("reloaded sonnet provider = %q, want openrouter", got.SonnetProvider)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}
	var onDisk map[string]interface{}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("config file is not valid JSON: %v", err)
	}
	if _, ok := onDisk["bogus_key"]; ok {
		t.Error("unknown keys must not be persisted")
	}
}

func TestRuntimeConfigAccessors(t *testing.T) {
	rc := testDefaults()
	if got := rc.ProviderFor("haiku"); got != "gemini_bridge" {
		t.Errorf("ProviderFor(haiku) = %q", got)
	}
	if got := rc.ModelFor("opus"); got != "claude-opus-4-20250514" {
		t.Errorf("ModelFor(opus) = %q", got)
	}
	if got := rc.ProviderFor("nope"); got != "" {
		t.Errorf("ProviderFor(nope) = %q, want empty", got)
	}
}
