// Package usage accounts token consumption per provider, model, and tier,
// with a bounded history of recent requests.
package usage

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// historyLimit bounds the recent-request list; totals keep counting past it.
const historyLimit = 100

// Record is one accounted request.
type Record struct {
	Timestamp    string `json:"timestamp"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Tier         string `json:"tier"`
}

// Bucket aggregates one provider, model, or tier.
type Bucket struct {
	Requests     int64 `json:"requests"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Stats is the full accounting state, also the on-disk JSON shape.
type Stats struct {
	TotalRequests     int64              `json:"total_requests"`
	TotalInputTokens  int64              `json:"total_input_tokens"`
	TotalOutputTokens int64              `json:"total_output_tokens"`
	ByProvider        map[string]*Bucket `json:"by_provider"`
	ByModel           map[string]*Bucket `json:"by_model"`
	ByTier            map[string]*Bucket `json:"by_tier"`
	History           []Record           `json:"history"`
}

func emptyStats() Stats {
	return Stats{
		ByProvider: map[string]*Bucket{},
		ByModel:    map[string]*Bucket{},
		ByTier:     map[string]*Bucket{},
		History:    []Record{},
	}
}

// Tracker is a thread-safe usage accumulator persisted to a JSON file on
// every record. Accounting failures only ever log; they never propagate.
type Tracker struct {
	mu   sync.Mutex
	path string
	data Stats
}

// NewTracker loads existing stats from path. A corrupted or unreadable
// file starts the tracker empty rather than failing startup.
func NewTracker(path string) *Tracker {
	t := &Tracker{path: path, data: emptyStats()}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &t.data); err != nil {
			log.Warnf("⚠️ Could not parse usage file %s, starting fresh: %v", path, err)
			t.data = emptyStats()
		}
	}
	if t.data.ByProvider == nil {
		t.data.ByProvider = map[string]*Bucket{}
	}
	if t.data.ByModel == nil {
		t.data.ByModel = map[string]*Bucket{}
	}
	if t.data.ByTier == nil {
		t.data.ByTier = map[string]*Bucket{}
	}
	if t.data.History == nil {
		t.data.History = []Record{}
	}
	return t
}

// Record accounts one request and persists the new state.
func (t *Tracker) Record(inputTokens, outputTokens int64, provider, model, tier string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.TotalRequests++
	t.data.TotalInputTokens += inputTokens
	t.data.TotalOutputTokens += outputTokens

	for _, b := range []struct {
		m    map[string]*Bucket
		name string
	}{
		{t.data.ByProvider, provider},
		{t.data.ByModel, model},
		{t.data.ByTier, tier},
	} {
		bucket, ok := b.m[b.name]
		if !ok {
			bucket = &Bucket{}
			b.m[b.name] = bucket
		}
		bucket.Requests++
		bucket.InputTokens += inputTokens
		bucket.OutputTokens += outputTokens
	}

	t.data.History = append(t.data.History, Record{
		Timestamp:    time.Now().Format(time.RFC3339),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Provider:     provider,
		Model:        model,
		Tier:         tier,
	})
	if len(t.data.History) > historyLimit {
		t.data.History = t.data.History[len(t.data.History)-historyLimit:]
	}

	t.save()
}

// Stats returns a deep copy of the current state.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Stats{
		TotalRequests:     t.data.TotalRequests,
		TotalInputTokens:  t.data.TotalInputTokens,
		TotalOutputTokens: t.data.TotalOutputTokens,
		ByProvider:        copyBuckets(t.data.ByProvider),
		ByModel:           copyBuckets(t.data.ByModel),
		ByTier:            copyBuckets(t.data.ByTier),
		History:           make([]Record, len(t.data.History)),
	}
	copy(out.History, t.data.History)
	return out
}

// Reset zeroes all counters and persists the empty state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = emptyStats()
	t.save()
}

// save runs with the tracker lock held.
func (t *Tracker) save() {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		log.Errorf("❌ Failed to encode usage stats: %v", err)
		return
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		log.Errorf("❌ Failed to save usage stats: %v", err)
	}
}

func copyBuckets(src map[string]*Bucket) map[string]*Bucket {
	out := make(map[string]*Bucket, len(src))
	for name, bucket := range src {
		copied := *bucket
		out[name] = &copied
	}
	return out
}
