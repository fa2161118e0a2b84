package credentials

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func writeCredentials(t *testing.T, oauth map[string]interface{}, siblings map[string]interface{}) string {
	t.Helper()
	doc := map[string]interface{}{"claudeAiOauth": oauth}
	for k, v := range siblings {
		doc[k] = v
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal credentials: %v", err)
	}
	path := filepath.Join(t.TempDir(), ".credentials.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	return path
}

func newTestManager(path, tokenURL string) *Manager {
	m := NewManager(path)
	if tokenURL != "" {
		m.tokenURL = tokenURL
	}
	return m
}

func TestTokenFreshNoRefresh(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	path := writeCredentials(t, map[string]interface{}{
		"accessToken":  "fresh-token",
		"refreshToken": "rt",
		"expiresAt":    time.Now().Add(2 * time.Hour).UnixMilli(),
	}, nil)
	m := newTestManager(path, server.URL)

	if got := m.Token(); got != "fresh-token" {
		t.Errorf("Token() = %q, want fresh-token", got)
	}
	if calls.Load() != 0 {
		t.Errorf("refresh endpoint called %d times for a fresh token", calls.Load())
	}
}

func TestTokenWithoutExpiryUsedAsIs(t *testing.T) {
	path := writeCredentials(t, map[string]interface{}{
		"accessToken": "no-expiry-token",
	}, nil)
	m := newTestManager(path, "")

	if got := m.Token(); got != "no-expiry-token" {
		t.Errorf("Token() = %q, want no-expiry-token", got)
	}
}

func TestTokenRefreshRewritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		var grant map[string]string
		if err := json.NewDecoder(r.Body).Decode(&grant); err != nil {
			t.Errorf("decode grant: %v", err)
		}
		if grant["grant_type"] != "refresh_token" || grant["refresh_token"] != "old-rt" {
			t.Errorf("unexpected grant: %v", grant)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-access-token-0123456789",
			"refresh_token": "new-rt",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	path := writeCredentials(t, map[string]interface{}{
		"accessToken":      "stale-token",
		"refreshToken":     "old-rt",
		"expiresAt":        time.Now().Add(-time.Minute).UnixMilli(),
		"scopes":           []string{"user:inference"},
		"subscriptionType": "max",
	}, map[string]interface{}{
		"otherTool": map[string]interface{}{"keep": true},
	})
	m := newTestManager(path, server.URL)

	before := time.Now().UnixMilli()
	if got := m.Token(); got != "new-access-token-0123456789" {
		t.Fatalf("Token() = %q, want the refreshed token", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rewritten file: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("rewritten file is not JSON: %v", err)
	}
	if _, ok := doc["otherTool"]; !ok {
		t.Error("top-level sibling keys must survive the rewrite")
	}
	oauth := doc["claudeAiOauth"].(map[string]interface{})
	if oauth["accessToken"] != "new-access-token-0123456789" {
		t.Errorf("accessToken = %v", oauth["accessToken"])
	}
	if oauth["refreshToken"] != "new-rt" {
		t.Errorf("refreshToken = %v, want rotation persisted", oauth["refreshToken"])
	}
	if oauth["subscriptionType"] != "max" {
		t.Error("keys inside claudeAiOauth must survive the rewrite")
	}
	expiresAt := int64(oauth["expiresAt"].(float64))
	if expiresAt < before+3500*1000 {
		t.Errorf("expiresAt = %d, want roughly an hour out", expiresAt)
	}
}

func TestTokenRefreshSingleFlight(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "refreshed-token-0123456789",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	path := writeCredentials(t, map[string]interface{}{
		"accessToken":  "stale",
		"refreshToken": "rt",
		"expiresAt":    time.Now().Add(-time.Minute).UnixMilli(),
	}, nil)
	m := newTestManager(path, server.URL)

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i] = m.Token()
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("refresh endpoint called %d times, want exactly 1", calls.Load())
	}
	for i, tok := range tokens {
		if tok != "refreshed-token-0123456789" {
			t.Errorf("caller %d got %q", i, tok)
		}
	}
}

func TestTokenRefreshFailureCooldown(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	path := writeCredentials(t, map[string]interface{}{
		"accessToken":  "stale-but-usable",
		"refreshToken": "rt",
		"expiresAt":    time.Now().Add(-time.Minute).UnixMilli(),
	}, nil)
	m := newTestManager(path, server.URL)

	if got := m.Token(); got != "" {
		t.Errorf("first Token() = %q, want empty after a failed refresh", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("refresh endpoint called %d times, want 1", calls.Load())
	}

	// Inside the cooldown window the stale token is returned without
	// another attempt.
	if got := m.Token(); got != "stale-but-usable" {
		t.Errorf("second Token() = %q, want the stale token during cooldown", got)
	}
	if calls.Load() != 1 {
		t.Errorf("refresh endpoint called %d times during cooldown, want still 1", calls.Load())
	}
}

func TestTokenNoRefreshToken(t *testing.T) {
	path := writeCredentials(t, map[string]interface{}{
		"accessToken": "expired",
		"expiresAt":   time.Now().Add(-time.Minute).UnixMilli(),
	}, nil)
	m := newTestManager(path, "")

	if got := m.Token(); got != "" {
		t.Errorf("Token() = %q, want empty without a refresh token", got)
	}
}

func TestHasCredentials(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing.json"))
	if m.HasCredentials() {
		t.Error("HasCredentials() = true for a missing file")
	}

	path := writeCredentials(t, map[string]interface{}{"accessToken": ""}, nil)
	if newTestManager(path, "").HasCredentials() {
		t.Error("HasCredentials() = true for an empty access token")
	}

	path = writeCredentials(t, map[string]interface{}{"accessToken": "tok"}, nil)
	if !newTestManager(path, "").HasCredentials() {
		t.Error("HasCredentials() = false for a present token")
	}
}

func TestMaskToken(t *testing.T) {
	if got := maskToken("sk-ant-oat01-abcdefghijkl"); got != "...abcdefghijkl" {
		t.Errorf("maskToken() = %q", got)
	}
	if got := maskToken("short"); got != "***" {
		t.Errorf("maskToken(short) = %q", got)
	}
}
