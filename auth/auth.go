/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package auth implements the SASL mechanism set (C3): PLAIN,
// SCRAM-SHA-1 and SCRAM-SHA-256, per RFC 4616 and RFC 5802.
package auth

import "github.com/ortuman/xmppd/xml"

// Condition enumerates the SASL failure conditions spec.md §4.3/§7 name.
type Condition string

const (
	NotAuthorized         Condition = "not-authorized"
	MalformedRequest      Condition = "malformed-request"
	TemporaryAuthFailure  Condition = "temporary-auth-failure"
	MechanismTooWeak      Condition = "mechanism-too-weak"
	InvalidMechanism      Condition = "invalid-mechanism"
)

// Error is a SASL-level authentication failure. It never closes the
// stream; the connection state machine replies with <failure/> and either
// lets the client retry (up to sasl.max_attempts) or escalates to a stream
// error once the attempt budget is exhausted.
type Error struct {
	Condition Condition
}

func (e *Error) Error() string { return string(e.Condition) }

// Element renders <failure xmlns='...'><condition/></failure>.
func (e *Error) Element() *xml.Element {
	failure := xml.NewElementNamespace("failure", saslNamespace)
	failure.AppendElement(xml.NewElementName(string(e.Condition)))
	return failure
}

const saslNamespace = "urn:ietf:params:xml:ns:xmpp-sasl"

var (
	ErrNotAuthorized        = &Error{Condition: NotAuthorized}
	ErrMalformedRequest     = &Error{Condition: MalformedRequest}
	ErrTemporaryAuthFailure = &Error{Condition: TemporaryAuthFailure}
	ErrMechanismTooWeak     = &Error{Condition: MechanismTooWeak}
	ErrInvalidMechanism     = &Error{Condition: InvalidMechanism}
)

// Credentials is what a Provider hands back for SCRAM: the per-user salt,
// iteration count, and the two derived keys (never the plaintext or
// reversibly-encrypted password, per RFC 5802).
type Credentials struct {
	Salt       []byte
	Iterations int
	StoredKey  []byte
	ServerKey  []byte
}

// Provider is the external, abstract credential store (spec.md §6's "Auth
// provider interface (consumed)"). Implementations must be safe for
// concurrent calls from many connections' actor goroutines at once.
type Provider interface {
	// AuthenticatePlain verifies a cleartext password and, on success,
	// returns the user's bare JID.
	AuthenticatePlain(user, password string) (bareJID string, ok bool, err error)

	// ScramCredentials returns the stored SCRAM credentials for user under
	// the named mechanism ("SCRAM-SHA-1" or "SCRAM-SHA-256").
	ScramCredentials(user, mechanism string) (Credentials, bool, error)
}

// Step is what a mechanism's ProcessElement call yields after consuming
// one <auth>/<response> element.
type Step int

const (
	// Continue means the mechanism needs another round trip; the caller
	// must have written a <challenge/> before returning.
	Continue Step = iota
	// Done means the exchange finished (successfully or not); check
	// Authenticator.Authenticated().
	Done
)

// Authenticator is a single SASL mechanism's per-connection state machine,
// matching the shape spec.md §4.3 describes: start/step, Continue/Success/
// Failure.
type Authenticator interface {
	// Mechanism returns the SASL mechanism name ("PLAIN", "SCRAM-SHA-1",
	// "SCRAM-SHA-256") as advertised in <mechanisms/>.
	Mechanism() string

	// ProcessElement consumes one <auth> (first call) or <response>
	// (subsequent calls) element. On success it writes a <challenge/> or
	// <success/> via send and returns (Continue|Done, nil); on failure it
	// writes nothing and returns a *Error.
	ProcessElement(elem xml.XElement, send func(xml.XElement)) (Step, error)

	// Authenticated reports whether the mechanism reached a successful
	// Done.
	Authenticated() bool

	// Username returns the authenticated bare JID's localpart, valid only
	// after Authenticated() is true.
	Username() string

	// Reset discards any in-progress exchange state (called after
	// success, failure, or connection close — spec.md §3's SaslSession
	// "destroyed on success, failure, or connection close").
	Reset()
}
