/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package streamerror defines the RFC 6120 §4.9.3 stream-level error
// conditions. Unlike a stanza error, a stream error is always fatal: the
// connection state machine (package c2s) sends the <stream:error/> element
// and closes the stream.
package streamerror

import "strings"

const streamsNamespace = "urn:ietf:params:xml:ns:xmpp-streams"

// Error is a fatal, stream-level XMPP error condition.
type Error struct {
	condition string
}

func newError(condition string) *Error { return &Error{condition: condition} }

// Error satisfies the builtin error interface, returning the bare
// condition name (e.g. "not-well-formed").
func (e *Error) Error() string { return e.condition }

// Element renders <stream:error><condition xmlns='...'/></stream:error> as
// its literal wire text, ready to be written directly to the connection.
func (e *Error) Element() string {
	var sb strings.Builder
	sb.WriteString("<stream:error><")
	sb.WriteString(e.condition)
	sb.WriteString(` xmlns="`)
	sb.WriteString(streamsNamespace)
	sb.WriteString(`"/></stream:error>`)
	return sb.String()
}

// The stream error conditions spec.md §7 enumerates.
var (
	ErrBadFormat            = newError("bad-format")
	ErrNotWellFormed        = newError("not-well-formed")
	ErrInvalidNamespace     = newError("invalid-namespace")
	ErrUnsupportedVersion   = newError("unsupported-version")
	ErrHostUnknown          = newError("host-unknown")
	ErrPolicyViolation      = newError("policy-violation")
	ErrConflict             = newError("conflict")
	ErrConnectionTimeout    = newError("connection-timeout")
	ErrInternalServerError  = newError("internal-server-error")
	ErrSystemShutdown       = newError("system-shutdown")
	ErrNotAuthorized        = newError("not-authorized")
	ErrInvalidXML           = newError("invalid-xml")
	ErrInvalidFrom          = newError("invalid-from")
	ErrUnsupportedStanzaType = newError("unsupported-stanza-type")
	ErrRestrictedXML        = newError("restricted-xml")
	ErrUnsupportedEncoding  = newError("unsupported-encoding")
	ErrResourceConstraint   = newError("resource-constraint")
)
