// Package monitor captures one history row per proxied request, backed
// by SQLite with a small in-memory cache for when the database is sick.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pysugar/claude-relay/internal/db/models"
)

const (
	// maxRequestBodySize limits stored request bodies to 1MB.
	maxRequestBodySize = 1024 * 1024
	// maxResponseBodySize limits stored response bodies to 512KB.
	maxResponseBodySize = 512 * 1024
	// maxMemoryLogs caps the in-memory cache.
	maxMemoryLogs = 100
)

// Monitor records request history rows and aggregate counters.
type Monitor struct {
	db *gorm.DB

	recentMu sync.RWMutex
	recent   []models.RequestLog

	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
}

// New builds a Monitor over an already-migrated database and seeds the
// counters from existing rows.
func New(database *gorm.DB) *Monitor {
	m := &Monitor{
		db:     database,
		recent: make([]models.RequestLog, 0, maxMemoryLogs),
	}
	m.loadStats()
	return m
}

// Record stores one request row: counters and the in-memory cache update
// synchronously, the database insert runs in the background so recording
// never delays a response.
func (m *Monitor) Record(entry models.RequestLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	if len(entry.RequestBody) > maxRequestBodySize {
		entry.RequestBody = entry.RequestBody[:maxRequestBodySize] + "...[truncated]"
	}
	if len(entry.ResponseBody) > maxResponseBodySize {
		entry.ResponseBody = entry.ResponseBody[:maxResponseBodySize] + "...[truncated]"
	}

	m.totalRequests.Add(1)
	if entry.Status >= 200 && entry.Status < 400 {
		m.successCount.Add(1)
	} else {
		m.errorCount.Add(1)
	}

	m.recentMu.Lock()
	m.recent = append([]models.RequestLog{entry}, m.recent...)
	if len(m.recent) > maxMemoryLogs {
		m.recent = m.recent[:maxMemoryLogs]
	}
	m.recentMu.Unlock()

	go func(row models.RequestLog) {
		if err := m.db.Create(&row).Error; err != nil {
			log.Warnf("⚠️ Failed to save request log: %v", err)
		}
	}(entry)
}

// Logs returns the newest rows, optionally only those from the last
// sinceMinutes. Falls back to the in-memory cache when the database
// query fails.
func (m *Monitor) Logs(limit, sinceMinutes int) []models.RequestLog {
	if limit <= 0 {
		limit = 100
	}

	query := m.db.Order("timestamp DESC").Limit(limit)
	if sinceMinutes > 0 {
		since := time.Now().Add(-time.Duration(sinceMinutes) * time.Minute).UnixMilli()
		query = query.Where("timestamp >= ?", since)
	}

	var logs []models.RequestLog
	if err := query.Find(&logs).Error; err != nil {
		log.Warnf("⚠️ Failed to read request logs, serving memory cache: %v", err)
		m.recentMu.RLock()
		defer m.recentMu.RUnlock()
		if limit > len(m.recent) {
			limit = len(m.recent)
		}
		return append([]models.RequestLog{}, m.recent[:limit]...)
	}
	return logs
}

// Stats returns the aggregate counters.
func (m *Monitor) Stats() models.RequestStats {
	return models.RequestStats{
		TotalRequests: m.totalRequests.Load(),
		SuccessCount:  m.successCount.Load(),
		ErrorCount:    m.errorCount.Load(),
	}
}

// Clear wipes the cache, the counters, and the persisted rows.
func (m *Monitor) Clear() error {
	m.recentMu.Lock()
	m.recent = m.recent[:0]
	m.recentMu.Unlock()

	m.totalRequests.Store(0)
	m.successCount.Store(0)
	m.errorCount.Store(0)

	if err := m.db.Exec("DELETE FROM request_logs").Error; err != nil {
		log.Errorf("❌ Failed to clear request logs: %v", err)
		return err
	}
	log.Info("🧹 Request history cleared")
	return nil
}

func (m *Monitor) loadStats() {
	var total, success, errors int64
	m.db.Model(&models.RequestLog{}).Count(&total)
	m.db.Model(&models.RequestLog{}).Where("status >= 200 AND status < 400").Count(&success)
	m.db.Model(&models.RequestLog{}).Where("status < 200 OR status >= 400").Count(&errors)

	m.totalRequests.Store(total)
	m.successCount.Store(success)
	m.errorCount.Store(errors)

	log.Infof("📊 Request history loaded: total=%d, success=%d, errors=%d", total, success, errors)
}
