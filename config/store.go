// Package config holds the small key/value configuration the CLI persists
// between runs: OAuth client credentials, the current token set and optional
// endpoint overrides.
//
// Two stores ship with the package. FileStore keeps everything in a YAML
// document on disk and is what the CLI uses; MemoryStore is enough for tests.
package config

import (
	"sync"
)

// Keys understood by the rest of the module.
const (
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeyRedirectURI  = "redirect_uri"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserID       = "user_id"
	KeyTokenExpiry  = "token_expiry"
	KeyAPIURL       = "api_url"
	KeyAuthURL      = "auth_url"
	KeyTokenURL     = "token_url"
)

// Store is a persisted string key/value source.
//
// Set and SetAll must not return before the value is durable. SetAll writes
// every key in one operation; an empty value removes the key.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	SetAll(values map[string]string) error
}

// MemoryStore keeps values in process memory only.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns a store seeded with a copy of values.
func NewMemoryStore(values map[string]string) *MemoryStore {
	ret := &MemoryStore{values: map[string]string{}}
	for k, v := range values {
		if v != "" {
			ret.values[k] = v
		}
	}
	return ret
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Set stores a single key; an empty value removes it.
func (m *MemoryStore) Set(key, value string) error {
	return m.SetAll(map[string]string{key: value})
}

// SetAll applies values in one step.
func (m *MemoryStore) SetAll(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(m.values, values)
	return nil
}

func apply(dst, src map[string]string) {
	for k, v := range src {
		if v == "" {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}
