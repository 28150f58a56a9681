/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package auth

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/ortuman/xmppd/xml"
)

// plainAuthenticator implements RFC 4616 SASL PLAIN: a single
// authzid\0authcid\0password payload, base64-encoded inside <auth/>.
type plainAuthenticator struct {
	provider      Provider
	domain        string
	authenticated bool
	username      string
}

// NewPlain returns a fresh PLAIN Authenticator backed by provider, scoping
// the resulting bare JID to domain.
func NewPlain(provider Provider, domain string) Authenticator {
	return &plainAuthenticator{provider: provider, domain: domain}
}

func (a *plainAuthenticator) Mechanism() string { return "PLAIN" }

func (a *plainAuthenticator) ProcessElement(elem xml.XElement, send func(xml.XElement)) (Step, error) {
	raw, err := base64.StdEncoding.DecodeString(elem.Text())
	if err != nil {
		return Done, ErrMalformedRequest
	}
	parts := bytes.SplitN(raw, []byte{0}, 3)
	if len(parts) != 3 {
		return Done, ErrMalformedRequest
	}
	authcid, password := string(parts[1]), string(parts[2])
	if len(authcid) == 0 || len(password) == 0 {
		return Done, ErrMalformedRequest
	}
	if strings.IndexByte(authcid, 0) >= 0 || strings.IndexByte(password, 0) >= 0 {
		return Done, ErrMalformedRequest
	}

	bareJID, ok, err := a.provider.AuthenticatePlain(authcid, password)
	if err != nil {
		return Done, ErrTemporaryAuthFailure
	}
	if !ok {
		return Done, ErrNotAuthorized
	}
	if len(bareJID) == 0 {
		bareJID = authcid + "@" + a.domain
	}
	a.authenticated = true
	a.username = authcid
	send(xml.NewElementNamespace("success", saslNamespace))
	return Done, nil
}

func (a *plainAuthenticator) Authenticated() bool { return a.authenticated }
func (a *plainAuthenticator) Username() string    { return a.username }

func (a *plainAuthenticator) Reset() {
	a.authenticated = false
	a.username = ""
}
