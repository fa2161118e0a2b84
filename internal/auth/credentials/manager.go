// Package credentials owns the Claude OAuth credentials file and keeps the
// access token fresh across concurrent requests.
package credentials

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// DefaultTokenURL is the Anthropic OAuth refresh endpoint.
const DefaultTokenURL = "https://api.anthropic.com/v1/oauth/token"

const (
	// refreshBuffer refreshes tokens this long before they expire.
	refreshBuffer = 5 * time.Minute
	// failureCooldown suppresses refresh attempts after a failure so a
	// broken refresh token cannot hammer the endpoint.
	failureCooldown = 60 * time.Second
	refreshTimeout  = 10 * time.Second
)

// Manager reads and rewrites the on-disk credentials document. The file is
// the source of truth; every Token() call re-reads it so external logins
// are picked up without a restart.
type Manager struct {
	path     string
	tokenURL string
	client   *http.Client

	mu                 sync.Mutex
	lastRefreshFailure time.Time
}

func NewManager(path string) *Manager {
	return &Manager{
		path:     path,
		tokenURL: DefaultTokenURL,
		client:   &http.Client{Timeout: refreshTimeout},
	}
}

// document is the parsed credentials file. Keys other than claudeAiOauth,
// and unknown keys inside it, are preserved across rewrites.
type document struct {
	top   map[string]json.RawMessage
	oauth map[string]interface{}
}

func (d *document) accessToken() string {
	s, _ := d.oauth["accessToken"].(string)
	return s
}

func (d *document) refreshToken() string {
	s, _ := d.oauth["refreshToken"].(string)
	return s
}

func (d *document) expiresAt() int64 {
	f, _ := d.oauth["expiresAt"].(float64)
	return int64(f)
}

// HasCredentials reports whether the credentials file exists and carries an
// access token. It never triggers a refresh.
func (m *Manager) HasCredentials() bool {
	doc, err := m.load()
	return err == nil && doc.accessToken() != ""
}

// Token returns a valid access token, refreshing preemptively when the
// stored one expires within the buffer. It returns "" when no credentials
// are available; callers fall back to whatever auth the client supplied.
func (m *Manager) Token() string {
	doc, err := m.load()
	if err != nil {
		return ""
	}
	if !needsRefresh(doc) {
		return doc.accessToken()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another request may have refreshed while we waited for the lock.
	doc, err = m.load()
	if err != nil {
		return ""
	}
	if !needsRefresh(doc) {
		return doc.accessToken()
	}

	if doc.refreshToken() == "" {
		log.Error("❌ OAuth token expired and no refresh token is available")
		return ""
	}
	if since := time.Since(m.lastRefreshFailure); since < failureCooldown {
		log.Warnf("⚠️ Token refresh failed %.0fs ago, using existing token until cooldown passes", since.Seconds())
		return doc.accessToken()
	}

	tok, err := m.refresh(doc)
	if err != nil {
		m.lastRefreshFailure = time.Now()
		log.Errorf("❌ Token refresh failed: %v", err)
		return ""
	}
	return tok.AccessToken
}

// needsRefresh is true when the token carries an expiry inside the buffer.
// Tokens without an expiry are used as-is.
func needsRefresh(doc *document) bool {
	expiresAt := doc.expiresAt()
	if expiresAt == 0 {
		return false
	}
	return time.Now().UnixMilli()+refreshBuffer.Milliseconds() >= expiresAt
}

func (m *Manager) load() (*document, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	doc := &document{top: map[string]json.RawMessage{}, oauth: map[string]interface{}{}}
	if err := json.Unmarshal(data, &doc.top); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if raw, ok := doc.top["claudeAiOauth"]; ok {
		if err := json.Unmarshal(raw, &doc.oauth); err != nil {
			return nil, fmt.Errorf("parse claudeAiOauth: %w", err)
		}
	}
	return doc, nil
}

func (m *Manager) save(doc *document) error {
	raw, err := json.Marshal(doc.oauth)
	if err != nil {
		return err
	}
	doc.top["claudeAiOauth"] = raw
	data, err := json.MarshalIndent(doc.top, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o600)
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// refresh exchanges the refresh token and rewrites the credentials file.
// Called with the manager lock held.
func (m *Manager) refresh(doc *document) (*oauth2.Token, error) {
	log.Info("🔄 Refreshing OAuth token...")

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": doc.refreshToken(),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, m.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, fmt.Errorf("HTTP %d - %s", resp.StatusCode, body)
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse refresh response: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("refresh response carried no access_token")
	}
	if parsed.ExpiresIn == 0 {
		parsed.ExpiresIn = 3600
	}

	expiry := time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	tok := &oauth2.Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: doc.refreshToken(),
		TokenType:    "Bearer",
		Expiry:       expiry,
	}

	doc.oauth["accessToken"] = parsed.AccessToken
	doc.oauth["expiresAt"] = expiry.UnixMilli()
	if parsed.RefreshToken != "" {
		// The endpoint rotates refresh tokens; losing one means re-login.
		doc.oauth["refreshToken"] = parsed.RefreshToken
		tok.RefreshToken = parsed.RefreshToken
	}
	if err := m.save(doc); err != nil {
		return nil, fmt.Errorf("persist refreshed credentials: %w", err)
	}

	m.lastRefreshFailure = time.Time{}
	log.Infof("✅ OAuth token refreshed (%s), expires %s", maskToken(tok.AccessToken), expiry.Format(time.RFC3339))
	return tok, nil
}

// maskToken keeps only the tail of a token for logs.
func maskToken(token string) string {
	if len(token) >= 20 {
		return "..." + token[len(token)-12:]
	}
	return "***"
}
