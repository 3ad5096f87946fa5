// Package session decides whether the console holds a usable broker
// session. The token is a JWT-shaped string stored in the key-value
// store; only the expiry claim matters here, signature verification is
// the broker's job.
package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// TokenKey is the fixed key-value store key holding the session token.
const TokenKey = "mqdeck.session.token"

// TokenNoAuth is the placeholder stored when the broker runs without
// authentication; it is always considered a valid session.
const TokenNoAuth = "no-auth"

// TokenStore is the subset of the key-value store the session layer
// needs.
type TokenStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// Manager reads and validates the persisted session token.
type Manager struct {
	store TokenStore
	now   func() time.Time
}

// New returns a Manager over the given store.
func New(store TokenStore) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Token returns the raw stored token, or "" when absent.
func (m *Manager) Token() string {
	tok, _ := m.store.Get(TokenKey)
	return tok
}

// SetToken persists a new token.
func (m *Manager) SetToken(token string) {
	m.store.Set(TokenKey, token)
}

// ClearToken removes the persisted token.
func (m *Manager) ClearToken() {
	m.store.Remove(TokenKey)
}

// LoggedIn reports whether the stored token represents a valid session:
// either the no-auth placeholder, or a decodable token whose exp claim is
// strictly in the future. Absence or decode failure means not logged in.
func (m *Manager) LoggedIn() bool {
	tok, ok := m.store.Get(TokenKey)
	if !ok || tok == "" {
		return false
	}
	if tok == TokenNoAuth {
		return true
	}
	exp, err := tokenExpiry(tok)
	if err != nil {
		return false
	}
	return exp.After(m.now())
}

// tokenExpiry decodes the middle token segment and extracts exp.
func tokenExpiry(token string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, errInvalidToken
	}
	claimsJSON, err := base64UrlDecode(parts[1])
	if err != nil {
		return time.Time{}, err
	}
	var claims struct {
		ExpiresAt int64 `json:"exp"`
	}
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == 0 {
		return time.Time{}, errInvalidToken
	}
	return time.Unix(claims.ExpiresAt, 0), nil
}

var errInvalidToken = errors.New("malformed session token")

func base64UrlDecode(data string) ([]byte, error) {
	if l := len(data) % 4; l > 0 {
		data += strings.Repeat("=", 4-l)
	}
	return base64.URLEncoding.DecodeString(data)
}
