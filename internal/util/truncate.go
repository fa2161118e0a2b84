package util

import "fmt"

// DefaultLogMaxLen is the default maximum length for truncated log output (1KB).
// Full request/response content is available via the request history endpoints.
const DefaultLogMaxLen = 1024

// TruncateLog truncates long strings for logging and history capture.
// This keeps log files and history rows bounded while preserving enough
// of the payload to diagnose problems.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is a convenience wrapper for TruncateLog that accepts []byte
// and uses DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}
