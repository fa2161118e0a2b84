package monitor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pysugar/claude-relay/internal/db"
	"github.com/pysugar/claude-relay/internal/db/models"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	database, err := db.InitDB(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	return New(database)
}

// waitForRows polls until the persisted row count reaches want, since
// inserts happen on a background goroutine.
func waitForRows(t *testing.T, m *Monitor, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		m.db.Model(&models.RequestLog{}).Count(&count)
		if count >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d persisted rows", want)
}

func TestMonitorRecordPersists(t *testing.T) {
	m := newTestMonitor(t)

	m.Record(models.RequestLog{
		Method:   "POST",
		URL:      "/v1/messages",
		Status:   200,
		Duration: 42,
		Provider: "glm",
		Tier:     "sonnet",
		Model:    "claude-sonnet-4-5-20250929",
	})
	m.Record(models.RequestLog{
		Method: "POST",
		URL:    "/v1/messages",
		Status: 503,
		Error:  "missing credentials",
	})
	waitForRows(t, m, 2)

	stats := m.Stats()
	if stats.TotalRequests != 2 || stats.SuccessCount != 1 || stats.ErrorCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	logs := m.Logs(10, 0)
	if len(logs) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(logs))
	}
	if logs[0].ID == "" || logs[0].Timestamp == 0 {
		t.Fatalf("expected id and timestamp filled in, got %+v", logs[0])
	}
	for _, row := range logs {
		if row.Provider == "glm" && row.Tier != "sonnet" {
			t.Fatalf("expected tier recorded with provider, got %+v", row)
		}
	}
}

func TestMonitorStatsSurviveReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.db")
	database, err := db.InitDB(path)
	if err != nil {
		t.Fatalf("init db: %v", err)
	}

	m := New(database)
	m.Record(models.RequestLog{Method: "POST", URL: "/v1/messages", Status: 200})
	waitForRows(t, m, 1)

	reloaded := New(database)
	if stats := reloaded.Stats(); stats.TotalRequests != 1 || stats.SuccessCount != 1 {
		t.Fatalf("expected counters seeded from rows, got %+v", stats)
	}
}

func TestMonitorLogsLimitAndOrder(t *testing.T) {
	m := newTestMonitor(t)

	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		m.Record(models.RequestLog{
			Method:    "POST",
			URL:       "/v1/messages",
			Status:    200,
			Timestamp: base + int64(i),
		})
	}
	waitForRows(t, m, 5)

	logs := m.Logs(3, 0)
	if len(logs) != 3 {
		t.Fatalf("expected limit applied, got %d rows", len(logs))
	}
	if logs[0].Timestamp < logs[1].Timestamp {
		t.Fatalf("expected newest-first ordering, got %d then %d", logs[0].Timestamp, logs[1].Timestamp)
	}
}

func TestMonitorClear(t *testing.T) {
	m := newTestMonitor(t)

	m.Record(models.RequestLog{Method: "POST", URL: "/v1/messages", Status: 200})
	waitForRows(t, m, 1)

	if err := m.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if stats := m.Stats(); stats.TotalRequests != 0 {
		t.Fatalf("expected counters reset, got %+v", stats)
	}
	if logs := m.Logs(10, 0); len(logs) != 0 {
		t.Fatalf("expected no rows after clear, got %d", len(logs))
	}
}

func TestMonitorTruncatesOversizedBodies(t *testing.T) {
	m := newTestMonitor(t)

	huge := make([]byte, maxResponseBodySize+100)
	for i := range huge {
		huge[i] = 'a'
	}
	m.Record(models.RequestLog{Method: "POST", URL: "/v1/messages", Status: 200, ResponseBody: string(huge)})
	waitForRows(t, m, 1)

	logs := m.Logs(1, 0)
	if len(logs) != 1 {
		t.Fatalf("expected one row, got %d", len(logs))
	}
	if len(logs[0].ResponseBody) > maxResponseBodySize+len("...[truncated]") {
		t.Fatalf("expected response body truncated, got %d bytes", len(logs[0].ResponseBody))
	}
}
