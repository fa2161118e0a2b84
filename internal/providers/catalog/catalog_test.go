package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogCoversEveryProvider(t *testing.T) {
	c := Default()
	models := c.Models()

	for _, backend := range []string{"anthropic", "glm", "gemini_bridge", "copilot_bridge", "openrouter"} {
		if len(models[backend]) == 0 {
			t.Fatalf("expected default models for %s, got none", backend)
		}
	}
	if !contains(models["glm"], "glm-4.7") {
		t.Fatalf("expected glm defaults to include glm-4.7, got %v", models["glm"])
	}
	if !contains(models["openrouter"], "anthropic/claude-sonnet-4.5") {
		t.Fatalf("expected openrouter defaults to include anthropic/claude-sonnet-4.5, got %v", models["openrouter"])
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	yaml := `glm:
  - glm-experimental
gemini_bridge:
  - gemini-next
  - gemini-next-lite
not_a_provider:
  - bogus
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write models file: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	glm := c.For("glm")
	if len(glm) != 1 || glm[0] != "glm-experimental" {
		t.Fatalf("expected glm override, got %v", glm)
	}
	bridge := c.For("gemini_bridge")
	if len(bridge) != 2 || bridge[0] != "gemini-next" {
		t.Fatalf("expected gemini_bridge override, got %v", bridge)
	}
	if models := c.Models(); len(models["not_a_provider"]) != 0 {
		t.Fatalf("unknown provider should be dropped, got %v", models["not_a_provider"])
	}
	// Untouched providers keep their defaults.
	if !contains(c.For("anthropic"), "claude-3-5-haiku-20241022") {
		t.Fatalf("expected anthropic defaults to survive, got %v", c.For("anthropic"))
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(c.For("anthropic")) == 0 {
		t.Fatal("expected usable defaults despite load error")
	}
}

func TestModelsReturnsCopy(t *testing.T) {
	c := Default()
	models := c.Models()
	models["glm"][0] = "mutated"
	if c.For("glm")[0] == "mutated" {
		t.Fatal("Models must not expose internal slices")
	}
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
