/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package c2s

import (
	"time"
)

// Config holds the per-listener settings the connection state machine (C2)
// needs: the SASL mechanism set to offer, the maximum stanza size, and the
// connect/idle timeouts (spec.md §6). The resource-conflict policy is a
// router-wide setting instead (router.Router.SetConflictPolicy), since it
// must be consistent across every listener sharing one Router.
type Config struct {
	// Domain is the virtual host this listener serves. Only one domain per
	// listener is supported; multiple virtual hosts run multiple listeners
	// sharing the same *router.Router.
	Domain string

	// MaxStanzaSize bounds a single top-level stanza, in octets. Zero
	// disables the limit.
	MaxStanzaSize int

	// SASL lists the mechanism names to advertise and accept, in order:
	// any of "PLAIN", "SCRAM-SHA-1", "SCRAM-SHA-256".
	SASL []string

	// RequireTLS, when true, withholds the SASL mechanism list until the
	// stream is secured (spec.md §4.2's unauthenticated feature table).
	RequireTLS bool

	// ConnectTimeout bounds how long a new connection has to send its
	// opening <stream:stream/> before being dropped. Zero disables it.
	ConnectTimeout time.Duration

	// IdleTimeout bounds how long a bound session may go without sending
	// any stanza before being disconnected with <connection-timeout/>.
	// Zero disables it.
	IdleTimeout time.Duration

	// MaxSASLAttempts bounds how many failed <auth/>/<response/> exchanges
	// a connection gets before it is disconnected with <policy-violation>
	// (spec.md §4.3). Zero disables the limit.
	MaxSASLAttempts int

	// SASLTimeout bounds how long a connection may sit between its first
	// <auth/> and a terminal <success/>/<failure/> before the handshake is
	// aborted with temporary-auth-failure (spec.md §5). Zero disables it.
	SASLTimeout time.Duration
}
