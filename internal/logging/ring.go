package logging

import (
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Entry is one captured log line, shaped for the /logs endpoint.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Ring keeps the most recent log entries in memory, oldest first.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

func NewRing(max int) *Ring {
	return &Ring{max: max}
}

// Add appends an entry, evicting the oldest once the ring is full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
}

// Entries returns a copy of the buffered entries.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Clear drops all buffered entries.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// ringHook mirrors every log entry into the ring.
type ringHook struct {
	ring *Ring
}

func (h *ringHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *ringHook) Fire(e *log.Entry) error {
	level := strings.ToUpper(e.Level.String())
	h.ring.Add(Entry{
		Timestamp: e.Time.Format(time.RFC3339),
		Level:     level,
		Message:   "[" + level + "] " + e.Message,
	})
	return nil
}
