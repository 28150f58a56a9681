/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package auth

import (
	"encoding/base64"
	"testing"

	"github.com/ortuman/xmppd/xml"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	validUser, validPassword, bareJID string
	creds                             map[string]Credentials
}

func (f *fakeProvider) AuthenticatePlain(user, password string) (string, bool, error) {
	if user == f.validUser && password == f.validPassword {
		return f.bareJID, true, nil
	}
	return "", false, nil
}

func (f *fakeProvider) ScramCredentials(user, mechanism string) (Credentials, bool, error) {
	c, ok := f.creds[mechanism]
	return c, ok, nil
}

func authElement(payload string) xml.XElement {
	e := xml.NewElementNamespace("auth", saslNamespace)
	e.SetText(payload)
	return e
}

func TestPlainAuthenticationSuccess(t *testing.T) {
	provider := &fakeProvider{validUser: "romeo", validPassword: "pass123", bareJID: "romeo@example.com"}
	a := NewPlain(provider, "example.com")

	var sent xml.XElement
	payload := base64.StdEncoding.EncodeToString([]byte("\x00romeo\x00pass123"))
	step, err := a.ProcessElement(authElement(payload), func(e xml.XElement) { sent = e })

	require.NoError(t, err)
	require.Equal(t, Done, step)
	require.True(t, a.Authenticated())
	require.Equal(t, "romeo", a.Username())
	require.Equal(t, "success", sent.Name())
}

func TestPlainAuthenticationWrongPassword(t *testing.T) {
	provider := &fakeProvider{validUser: "romeo", validPassword: "pass123"}
	a := NewPlain(provider, "example.com")

	payload := base64.StdEncoding.EncodeToString([]byte("\x00romeo\x00wrong"))
	_, err := a.ProcessElement(authElement(payload), func(xml.XElement) {})

	require.Equal(t, ErrNotAuthorized, err)
	require.False(t, a.Authenticated())
}

func TestPlainAuthenticationMalformedPayload(t *testing.T) {
	provider := &fakeProvider{}
	a := NewPlain(provider, "example.com")

	_, err := a.ProcessElement(authElement("not-base64!!"), func(xml.XElement) {})
	require.Equal(t, ErrMalformedRequest, err)

	payload := base64.StdEncoding.EncodeToString([]byte("onlyonepart"))
	_, err = a.ProcessElement(authElement(payload), func(xml.XElement) {})
	require.Equal(t, ErrMalformedRequest, err)
}

func TestPlainReset(t *testing.T) {
	provider := &fakeProvider{validUser: "romeo", validPassword: "pass123", bareJID: "romeo@example.com"}
	a := NewPlain(provider, "example.com")
	payload := base64.StdEncoding.EncodeToString([]byte("\x00romeo\x00pass123"))
	_, _ = a.ProcessElement(authElement(payload), func(xml.XElement) {})
	require.True(t, a.Authenticated())

	a.Reset()
	require.False(t, a.Authenticated())
	require.Equal(t, "", a.Username())
}
