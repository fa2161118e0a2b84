package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pysugar/claude-relay/internal/db"
	"github.com/pysugar/claude-relay/internal/db/models"
	"github.com/pysugar/claude-relay/internal/proxy/monitor"
)

func newHandlerMonitor(t *testing.T) *monitor.Monitor {
	t.Helper()
	database, err := db.InitDB(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	return monitor.New(database)
}

// waitForPersisted polls until the monitor serves want rows, since inserts
// happen on a background goroutine.
func waitForPersisted(t *testing.T, mon *monitor.Monitor, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(mon.Logs(want+1, 0)) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d persisted rows", want)
}

func TestRequestLogsEndpointLimits(t *testing.T) {
	mon := newHandlerMonitor(t)
	for i := 0; i < 3; i++ {
		mon.Record(models.RequestLog{
			Method: "POST", URL: "/v1/messages", Status: 200,
			Provider: "glm", Tier: "sonnet", Model: "claude-sonnet-4-5-20250929",
		})
	}
	waitForPersisted(t, mon, 3)

	rec := httptest.NewRecorder()
	RequestLogsHandler(mon)(rec, httptest.NewRequest(http.MethodGet, "/api/requests?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Logs  []models.RequestLog `json:"logs"`
		Count int                 `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if resp.Count != 2 || len(resp.Logs) != 2 {
		t.Fatalf("expected 2 rows, got count=%d len=%d", resp.Count, len(resp.Logs))
	}
	if resp.Logs[0].Provider != "glm" || resp.Logs[0].Tier != "sonnet" {
		t.Fatalf("unexpected row: %+v", resp.Logs[0])
	}
}

func TestRequestStatsEndpoint(t *testing.T) {
	mon := newHandlerMonitor(t)
	mon.Record(models.RequestLog{Status: 200})
	mon.Record(models.RequestLog{Status: 503, Error: "misconfigured"})

	rec := httptest.NewRecorder()
	RequestStatsHandler(mon)(rec, httptest.NewRequest(http.MethodGet, "/api/requests/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats models.RequestStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalRequests != 2 || stats.SuccessCount != 1 || stats.ErrorCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestClearRequestsEndpoint(t *testing.T) {
	mon := newHandlerMonitor(t)
	mon.Record(models.RequestLog{Status: 200})
	waitForPersisted(t, mon, 1)

	rec := httptest.NewRecorder()
	ClearRequestsHandler(mon)(rec, httptest.NewRequest(http.MethodPost, "/api/requests/clear", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected clear response: %d %s", rec.Code, rec.Body.String())
	}
	if got := mon.Stats().TotalRequests; got != 0 {
		t.Fatalf("expected counters reset, got %d", got)
	}
}
