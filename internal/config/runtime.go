package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// RuntimeConfig is the mutable routing table: which provider serves each
// tier and which model name it should use. It is what POST /config edits
// and what config.json persists.
type RuntimeConfig struct {
	SonnetProvider string `json:"sonnet_provider"`
	SonnetModel    string `json:"sonnet_model"`
	HaikuProvider  string `json:"haiku_provider"`
	HaikuModel     string `json:"haiku_model"`
	OpusProvider   string `json:"opus_provider"`
	OpusModel      string `json:"opus_model"`
	LastUpdated    string `json:"last_updated"`
}

// ProviderFor returns the provider selected for a tier name.
func (rc RuntimeConfig) ProviderFor(tier string) string {
	switch tier {
	case "haiku":
		return rc.HaikuProvider
	case "sonnet":
		return rc.SonnetProvider
	case "opus":
		return rc.OpusProvider
	}
	return ""
}

// ModelFor returns the model selected for a tier name.
func (rc RuntimeConfig) ModelFor(tier string) string {
	switch tier {
	case "haiku":
		return rc.HaikuModel
	case "sonnet":
		return rc.SonnetModel
	case "opus":
		return rc.OpusModel
	}
	return ""
}

// DefaultRuntimeConfig seeds the routing table from static configuration:
// each tier gets its default provider and that provider's default model.
func DefaultRuntimeConfig(cfg *Config) RuntimeConfig {
	return RuntimeConfig{
		SonnetProvider: cfg.Routing.Sonnet,
		SonnetModel:    cfg.StaticModel(cfg.Routing.Sonnet, "sonnet"),
		HaikuProvider:  cfg.Routing.Haiku,
		HaikuModel:     cfg.StaticModel(cfg.Routing.Haiku, "haiku"),
		OpusProvider:   cfg.Routing.Opus,
		OpusModel:      cfg.StaticModel(cfg.Routing.Opus, "opus"),
		LastUpdated:    time.Now().Format(time.RFC3339),
	}
}

// RuntimeStore owns the routing table and its config.json persistence.
// All access goes through the store's lock.
type RuntimeStore struct {
	mu   sync.Mutex
	path string
	cur  RuntimeConfig
}

// NewRuntimeStore loads the routing table from path, merging the file over
// the given defaults. A missing file is created with the defaults; an
// unreadable one is a startup error.
func NewRuntimeStore(path string, def RuntimeConfig) (*RuntimeStore, error) {
	s := &RuntimeStore{path: path, cur: def}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
		log.Infof("📝 Created %s with default configuration", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &s.cur); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// Get returns a copy of the current routing table.
func (s *RuntimeStore) Get() RuntimeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update applies the given field changes atomically, stamps last_updated,
// persists, and returns the new table. Unknown keys are ignored; callers
// validate provider names beforehand. Persistence failures are logged, not
// surfaced: the in-memory table has already moved on.
func (s *RuntimeStore) Update(changes map[string]string) RuntimeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range changes {
		switch key {
		case "sonnet_provider":
			s.cur.SonnetProvider = value
		case "sonnet_model":
			s.cur.SonnetModel = value
		case "haiku_provider":
			s.cur.HaikuProvider = value
		case "haiku_model":
			s.cur.HaikuModel = value
		case "opus_provider":
			s.cur.OpusProvider = value
		case "opus_model":
			s.cur.OpusModel = value
		}
	}
	s.cur.LastUpdated = time.Now().Format(time.RFC3339)

	if err := s.save(); err != nil {
		log.Errorf("❌ Failed to save config: %v", err)
	}
	return s.cur
}

func (s *RuntimeStore) save() error {
	data, err := json.MarshalIndent(s.cur, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
