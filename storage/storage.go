/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package storage provides the concrete auth.Provider implementations
// backing user authentication: an in-memory store for tests and small
// deployments, and a SQL-backed store (Postgres/MySQL/SQLite) for
// production (spec.md §6's "Auth provider interface (consumed)").
package storage

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"github.com/ortuman/xmppd/auth"
)

// hashSHA256 is SCRAM-SHA-256's digest constructor, used directly by
// SQLProvider.AuthenticatePlain (which always verifies against the
// SHA-256 StoredKey regardless of which mechanisms are SASL-advertised).
var hashSHA256 = sha256.New

// constantTimeEqual compares two derived keys without leaking timing
// information about where they first differ.
func constantTimeEqual(a, b []byte) bool {
	return len(a) > 0 && hmac.Equal(a, b)
}

// DefaultIterations is the PBKDF2 iteration count newly provisioned users
// are salted with, per RFC 5802's recommendation of a cost high enough to
// slow brute-forcing but low enough to keep auth latency acceptable.
const DefaultIterations = 4096

// hashForMechanism resolves a SASL mechanism name to its digest
// constructor, shared between the memory and SQL providers.
func hashForMechanism(mechanism string) (func() hash.Hash, bool) {
	switch mechanism {
	case "SCRAM-SHA-1":
		return sha1.New, true
	case "SCRAM-SHA-256":
		return sha256.New, true
	default:
		return nil, false
	}
}

// derive computes the (StoredKey, ServerKey) pair for password under salt
// and iterations, for the given mechanism's hash function.
func derive(newHash func() hash.Hash, password string, salt []byte, iterations int) (storedKey, serverKey []byte) {
	salted := auth.ScramSaltedPassword(newHash, password, salt, iterations)
	return auth.ScramStoredKey(newHash, salted), auth.ScramServerKey(newHash, salted)
}
