// Package logging configures the process logger and captures recent
// entries for the log inspection endpoints.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// RingSize is how many recent log entries the in-memory ring keeps.
const RingSize = 100

// Setup configures the global logger and attaches the in-memory ring that
// backs GET /logs. When logFile is non-empty, output goes to that file
// (parent directories are created as needed); otherwise to stdout.
func Setup(logFile string) (*Ring, error) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if logFile != "" {
		if dir := filepath.Dir(logFile); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
	}

	ring := NewRing(RingSize)
	log.AddHook(&ringHook{ring: ring})
	return ring, nil
}
