// Package token handles the credentials every outgoing request carries:
// a short-lived HMAC-signed request token, the remotely issued admin
// token, and the durable random client identifier used for attribution.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues the short-lived signed token attached to every call.
type Signer struct {
	key []byte
	ttl time.Duration
}

func NewSigner(key string, ttl time.Duration) *Signer {
	return &Signer{key: []byte(key), ttl: ttl}
}

func (s *Signer) Issue() (string, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("token nonce: %w", err)
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        hex.EncodeToString(nonce),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token issued by this signer. Only used in tests and by
// operators checking a key rollout; the remote side does the real check.
func (s *Signer) Verify(raw string) error {
	_, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	return err
}

// Manager holds the current credential set and attaches it to request
// parameters. The admin token is granted remotely with an expiry; an
// expired or cleared token is simply omitted until reissued.
type Manager struct {
	signer   *Signer
	clientID string

	mu         sync.Mutex
	admin      string
	adminUntil time.Time
}

func NewManager(signer *Signer, clientID string) *Manager {
	return &Manager{signer: signer, clientID: clientID}
}

func (m *Manager) Attach(v url.Values) error {
	t, err := m.signer.Issue()
	if err != nil {
		return err
	}
	v.Set("token", t)
	if m.clientID != "" {
		v.Set("client", m.clientID)
	}
	m.mu.Lock()
	if m.admin != "" && time.Now().Before(m.adminUntil) {
		v.Set("adminToken", m.admin)
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) SetAdmin(tok string, ttl time.Duration) {
	m.mu.Lock()
	m.admin = tok
	m.adminUntil = time.Now().Add(ttl)
	m.mu.Unlock()
}

func (m *Manager) AdminValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admin != "" && time.Now().Before(m.adminUntil)
}

// Invalidate drops the admin token after the server rejects it.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.admin = ""
	m.adminUntil = time.Time{}
	m.mu.Unlock()
}

// LoadClientID returns the durable random client identifier stored under
// dir, generating and persisting one on first run. Used for request
// attribution only, never authorization.
func LoadClientID(dir string) (string, error) {
	path := filepath.Join(dir, "client_id")
	if b, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	}
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate client id: %w", err)
	}
	id := "client_" + hex.EncodeToString(raw)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return "", fmt.Errorf("persist client id: %w", err)
	}
	return id, nil
}
