// Package bridge manages the local gemini-claude-bridge process, an npm
// package that exposes Google Gemini accounts behind an Anthropic-shaped
// Messages endpoint. The supervisor starts it on demand, watches its
// health during startup, and tears it down on shutdown. A bridge that
// fails to start never blocks the proxy itself from serving.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pysugar/claude-relay/internal/config"
)

const (
	startupProbes   = 15
	startupInterval = time.Second
	stopGrace       = 5 * time.Second
)

// Supervisor owns the bridge child process.
type Supervisor struct {
	enabled bool
	port    int
	baseURL string
	client  *http.Client

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewSupervisor builds a supervisor for the configured bridge. It does not
// start anything.
func NewSupervisor(cfg config.GeminiBridgeConfig) *Supervisor {
	return &Supervisor{
		enabled: cfg.Enabled,
		port:    cfg.Port,
		baseURL: cfg.BaseURL(),
		client:  &http.Client{},
	}
}

// Start launches the bridge and waits up to fifteen seconds for its health
// endpoint to answer. Every failure path only logs: a broken bridge routes
// requests to a 503 later, it must not take the proxy down with it.
func (s *Supervisor) Start() {
	if !s.enabled {
		log.Info("🔌 Gemini bridge disabled - skipping startup")
		return
	}

	npx := findNpx()
	if npx == "" {
		log.Error("❌ npx not found. Please ensure Node.js is installed and in PATH.")
		return
	}

	nodeVersion, err := exec.Command("node", "--version").Output()
	if err != nil {
		log.Error("❌ Node.js not found. Please install Node.js to use the Gemini bridge.")
		return
	}
	log.Infof("🟢 Node.js version: %s", strings.TrimSpace(string(nodeVersion)))
	log.Infof("🚀 Starting Gemini bridge on port %d...", s.port)

	cmd := exec.Command(npx, "gemini-claude-bridge@latest", "start")
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", s.port))
	detach(cmd)

	if err := cmd.Start(); err != nil {
		log.Errorf("❌ Failed to start Gemini bridge: %v", err)
		return
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	s.mu.Lock()
	s.cmd = cmd
	s.exited = exited
	s.mu.Unlock()

	for attempt := 0; attempt < startupProbes; attempt++ {
		select {
		case <-exited:
			log.Error("❌ Gemini bridge process crashed during startup")
			return
		case <-time.After(startupInterval):
		}
		if status, err := s.probe(2 * time.Second); err == nil && status == http.StatusOK {
			log.Infof("✅ Gemini bridge started successfully on port %d", s.port)
			return
		}
	}
	log.Warnf("⚠️ Gemini bridge process running but not responding on port %d", s.port)
}

// Stop terminates the bridge, escalating to a hard kill after a grace
// period. Safe to call when the bridge never started.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	s.cmd = nil
	s.exited = nil
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	log.Info("🛑 Stopping Gemini bridge...")
	terminate(cmd)
	select {
	case <-exited:
	case <-time.After(stopGrace):
		log.Warn("⚠️ Force killing Gemini bridge...")
		_ = cmd.Process.Kill()
		<-exited
	}
	log.Info("🛑 Gemini bridge stopped")
}

// Status reports the bridge state for the health endpoint: disabled,
// healthy, unhealthy, or not_running.
func (s *Supervisor) Status() string {
	if !s.enabled {
		return "disabled"
	}
	status, err := s.probe(5 * time.Second)
	if err != nil {
		return "not_running"
	}
	if status == http.StatusOK {
		return "healthy"
	}
	return "unhealthy"
}

func (s *Supervisor) probe(timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// findNpx probes the usual npx locations. The Windows paths simply fail
// fast elsewhere, so one flat list covers every platform.
func findNpx() string {
	candidates := []string{"npx", "npx.cmd", `C:\Program Files\nodejs\npx.cmd`}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		candidates = append(candidates, filepath.Join(home, "AppData", "Roaming", "npm", "npx.cmd"))
	}

	for _, candidate := range candidates {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := exec.CommandContext(ctx, candidate, "--version").Run()
		cancel()
		if err == nil {
			log.Infof("🔍 Found npx at: %s", candidate)
			return candidate
		}
	}
	return ""
}
