package logging

import (
	"fmt"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestRingCapacity(t *testing.T) {
	ring := NewRing(100)
	for i := 0; i < 150; i++ {
		ring.Add(Entry{Timestamp: time.Now().Format(time.RFC3339), Level: "INFO", Message: fmt.Sprintf("[INFO] entry %d", i)})
	}

	entries := ring.Entries()
	if len(entries) != 100 {
		t.Fatalf("expected 100 entries after overflow, got %d", len(entries))
	}
	// Oldest 50 evicted, so the first survivor is entry 50.
	if entries[0].Message != "[INFO] entry 50" {
		t.Errorf("expected oldest surviving entry to be entry 50, got %q", entries[0].Message)
	}
	if entries[99].Message != "[INFO] entry 149" {
		t.Errorf("expected newest entry to be entry 149, got %q", entries[99].Message)
	}
}

func TestRingClear(t *testing.T) {
	ring := NewRing(10)
	ring.Add(Entry{Level: "INFO", Message: "[INFO] hello"})
	ring.Clear()
	if got := len(ring.Entries()); got != 0 {
		t.Errorf("expected empty ring after Clear, got %d entries", got)
	}
}

func TestRingHookCapturesEntries(t *testing.T) {
	ring := NewRing(10)
	logger := log.New()
	logger.SetOutput(nopWriter{})
	logger.AddHook(&ringHook{ring: ring})

	logger.Warn("backend not responding")

	entries := ring.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 captured entry, got %d", len(entries))
	}
	if entries[0].Level != "WARNING" {
		t.Errorf("expected level WARNING, got %q", entries[0].Level)
	}
	if entries[0].Message != "[WARNING] backend not responding" {
		t.Errorf("unexpected message: %q", entries[0].Message)
	}
	if _, err := time.Parse(time.RFC3339, entries[0].Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", entries[0].Timestamp, err)
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
