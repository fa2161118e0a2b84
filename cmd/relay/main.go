package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/pysugar/claude-relay/internal/auth/credentials"
	"github.com/pysugar/claude-relay/internal/bridge"
	"github.com/pysugar/claude-relay/internal/config"
	"github.com/pysugar/claude-relay/internal/db"
	"github.com/pysugar/claude-relay/internal/logging"
	"github.com/pysugar/claude-relay/internal/providers/catalog"
	"github.com/pysugar/claude-relay/internal/proxy/handlers"
	"github.com/pysugar/claude-relay/internal/proxy/middleware"
	"github.com/pysugar/claude-relay/internal/proxy/monitor"
	"github.com/pysugar/claude-relay/internal/proxy/routing"
	"github.com/pysugar/claude-relay/internal/upstream"
	"github.com/pysugar/claude-relay/internal/usage"
)

func main() {
	// Resolve static configuration (.env, optional YAML, environment)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	// Configure logging and the in-memory ring behind GET /logs
	ring, err := logging.Setup(cfg.Server.LogFile)
	if err != nil {
		log.Fatalf("❌ Failed to set up logging: %v", err)
	}

	// Initialize request history database
	database, err := db.InitDB(cfg.Files.Database)
	if err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	mon := monitor.New(database)

	// Token usage accounting and OAuth credentials
	tracker := usage.NewTracker(cfg.Files.Usage)
	creds := credentials.NewManager(cfg.CredentialsPath())

	// Runtime-mutable routing table and favorites
	store, err := config.NewRuntimeStore(cfg.Files.Config, config.DefaultRuntimeConfig(cfg))
	if err != nil {
		log.Fatalf("❌ Failed to load routing configuration: %v", err)
	}
	favorites := config.NewFavoritesStore(cfg.Files.Favorites)

	// Model catalog (built-in lists, optionally overridden from YAML)
	cat, err := catalog.Load(cfg.Files.Models)
	if err != nil {
		log.Warnf("⚠️ Using built-in model catalog: %v", err)
	}

	// Shared upstream client and the Gemini bridge supervisor
	client := upstream.NewClient(cfg.Server.Timeout(), creds, tracker)
	sup := bridge.NewSupervisor(cfg.GeminiBridge)

	// Create router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestLogger(&chimiddleware.DefaultLogFormatter{
		Logger:  log.StandardLogger(),
		NoColor: true,
	}))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.ProxyAuth(cfg.Server.APIKey))

	// ============================================
	// Anthropic-compatible API
	// ============================================
	r.Post("/v1/messages", handlers.MessagesHandler(cfg, store, client, mon))
	r.Post("/v1/messages/count_tokens", handlers.CountTokensHandler(cfg, store, client, mon))

	// ============================================
	// Health, runtime configuration, favorites
	// ============================================
	r.Get("/health", handlers.HealthHandler(cfg, store, creds, sup))
	r.Get("/config", handlers.GetConfigHandler(cfg, store, creds, cat))
	r.Post("/config", handlers.UpdateConfigHandler(store))
	r.Get("/favorites", handlers.ListFavoritesHandler(favorites))
	r.Post("/favorites", handlers.SaveFavoriteHandler(favorites))
	r.Delete("/favorites/{index}", handlers.DeleteFavoriteHandler(favorites))

	// ============================================
	// Observability
	// ============================================
	r.Get("/logs", handlers.LogsHandler(ring))
	r.Post("/logs/clear", handlers.ClearLogsHandler(ring))
	r.Get("/api/usage/stats", handlers.UsageStatsHandler(tracker))
	r.Post("/api/usage/reset", handlers.ResetUsageHandler(tracker))
	r.Get("/api/requests", handlers.RequestLogsHandler(mon))
	r.Get("/api/requests/stats", handlers.RequestStatsHandler(mon))
	r.Post("/api/requests/clear", handlers.ClearRequestsHandler(mon))
	r.Get("/version", handlers.VersionHandler())

	// ============================================
	// Bridge helpers
	// ============================================
	r.Get("/api/bridge/health", handlers.BridgeHealthProxyHandler(cfg))
	r.Get("/api/copilot/usage", handlers.CopilotUsageProxyHandler(cfg))
	r.Get("/test/bridge", handlers.TestBridgeHandler(cfg))

	printBanner(cfg, store, creds)

	// Bridge startup failures are logged, never fatal: the relay still
	// serves every other provider.
	sup.Start()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		sup.Stop()
		log.Fatalf("❌ Server failed: %v", err)
	case <-ctx.Done():
	}

	log.Info("🛑 Shutting down...")
	sup.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("❌ Shutdown error: %v", err)
	}
}

// printBanner logs the routing table and auth posture on startup.
func printBanner(cfg *config.Config, store *config.RuntimeStore, creds *credentials.Manager) {
	divider := strings.Repeat("=", 70)
	rc := store.Get()

	log.Info(divider)
	log.Info("Claude Relay - Unified Router (GLM + Gemini + Anthropic + Copilot)")
	log.Info(divider)

	log.Info("Current Routing Configuration:")
	log.Infof("  Sonnet → %s", tierDisplay(cfg, rc, "sonnet"))
	log.Infof("  Haiku  → %s", tierDisplay(cfg, rc, "haiku"))
	log.Infof("  Opus   → %s", tierDisplay(cfg, rc, "opus"))

	if cfg.GeminiBridge.Enabled {
		log.Info(divider)
		log.Info("Gemini Bridge:")
		log.Info("  Status: Enabled")
		log.Infof("  Port: %d", cfg.GeminiBridge.Port)
		log.Infof("  Health: %s/health", cfg.GeminiBridge.BaseURL())
	} else {
		log.Info("Gemini Bridge: Disabled")
	}

	routed := []string{rc.SonnetProvider, rc.HaikuProvider, rc.OpusProvider}
	for _, p := range routed {
		if p == string(routing.BackendAnthropic) {
			if creds.HasCredentials() {
				log.Info("Anthropic OAuth: Available ✓")
			} else {
				log.Info("Anthropic OAuth: NOT FOUND ✗")
			}
			break
		}
	}

	if cfg.Server.APIKey != "" {
		log.Info("Authentication: ENABLED (API Key required)")
	} else {
		log.Info("Authentication: DISABLED (Warning: Server is open to everyone)")
	}

	log.Info(divider)
	log.Infof("Relay listening on http://0.0.0.0:%d", cfg.Server.Port)
	log.Infof("Health check: http://localhost:%d/health", cfg.Server.Port)
	log.Infof("API endpoint: http://localhost:%d/v1/messages", cfg.Server.Port)
	log.Info(divider)
}

// tierDisplay names the provider and model serving a tier.
func tierDisplay(cfg *config.Config, rc config.RuntimeConfig, tier string) string {
	provider := rc.ProviderFor(tier)
	model := rc.ModelFor(tier)
	if model == "" {
		model = cfg.StaticModel(provider, tier)
	}

	switch provider {
	case string(routing.BackendGLM):
		if model == "" {
			model = "not configured"
		}
		return fmt.Sprintf("GLM (%s)", model)
	case string(routing.BackendGeminiBridge):
		return fmt.Sprintf("Gemini Bridge (%s)", model)
	case string(routing.BackendCopilotBridge):
		return fmt.Sprintf("GitHub Copilot (%s)", model)
	case string(routing.BackendOpenRouter):
		return fmt.Sprintf("OpenRouter (%s)", model)
	case string(routing.BackendCustom):
		return fmt.Sprintf("Custom (%s)", model)
	default:
		return "Anthropic (OAuth)"
	}
}
