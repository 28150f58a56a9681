/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package storage

import (
	"crypto/hmac"
	"crypto/rand"
	"sync"

	"github.com/ortuman/xmppd/auth"
	"github.com/pkg/errors"
)

type memoryUser struct {
	bareJID    string
	password   string // compared by AuthenticatePlain; ScramCredentials derives the SCRAM keys from it
	salt       []byte
	iterations int
}

// MemoryProvider is an in-memory auth.Provider, for tests and small,
// single-node deployments (config.yaml's "storage.driver: memory").
type MemoryProvider struct {
	mu    sync.RWMutex
	users map[string]memoryUser
}

// NewMemoryProvider returns an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{users: make(map[string]memoryUser)}
}

// AddUser provisions (or replaces) a user's credentials. password is kept
// in memory as given, together with a fresh random salt; the SCRAM keys are
// derived from it on each ScramCredentials call.
func (m *MemoryProvider) AddUser(username, password, domain string) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "storage: generating salt")
	}
	m.mu.Lock()
	m.users[username] = memoryUser{
		bareJID:    username + "@" + domain,
		password:   password,
		salt:       salt,
		iterations: DefaultIterations,
	}
	m.mu.Unlock()
	return nil
}

// AuthenticatePlain implements auth.Provider.
func (m *MemoryProvider) AuthenticatePlain(username, password string) (string, bool, error) {
	m.mu.RLock()
	u, ok := m.users[username]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	return u.bareJID, subtleEqualString(u.password, password), nil
}

// ScramCredentials implements auth.Provider.
func (m *MemoryProvider) ScramCredentials(username, mechanism string) (auth.Credentials, bool, error) {
	newHash, ok := hashForMechanism(mechanism)
	if !ok {
		return auth.Credentials{}, false, errors.Errorf("storage: unsupported mechanism %q", mechanism)
	}
	m.mu.RLock()
	u, ok := m.users[username]
	m.mu.RUnlock()
	if !ok {
		return auth.Credentials{}, false, nil
	}
	storedKey, serverKey := derive(newHash, u.password, u.salt, u.iterations)
	return auth.Credentials{
		Salt:       u.salt,
		Iterations: u.iterations,
		StoredKey:  storedKey,
		ServerKey:  serverKey,
	}, true, nil
}

// subtleEqualString compares two passwords in constant time for inputs of
// equal length, avoiding a timing oracle on the password prefix; inputs of
// different lengths return false at once.
func subtleEqualString(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
