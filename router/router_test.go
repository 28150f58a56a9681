/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package router

import (
	"errors"
	"testing"

	"github.com/ortuman/xmppd/xml"
	"github.com/stretchr/testify/require"
)

// fakeStream is a minimal in-memory C2S, recording every element it is
// asked to send and every error it is disconnected with.
type fakeStream struct {
	id       string
	jid      *xml.JID
	auth     bool
	presence *xml.Presence
	sent     []xml.XElement
	disc     error
}

func (f *fakeStream) ID() string                      { return f.id }
func (f *fakeStream) JID() *xml.JID                   { return f.jid }
func (f *fakeStream) IsAuthenticated() bool           { return f.auth }
func (f *fakeStream) Presence() *xml.Presence          { return f.presence }
func (f *fakeStream) SendElement(e xml.XElement)       { f.sent = append(f.sent, e) }
func (f *fakeStream) Disconnect(err error)             { f.disc = err }

func mustJID(t *testing.T, s string) *xml.JID {
	t.Helper()
	j, err := xml.NewJIDString(s, false)
	require.NoError(t, err)
	return j
}

func TestRouterBindReturnsFullJID(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	bare := mustJID(t, "romeo@example.com")
	stm := &fakeStream{id: "conn-1", auth: true}

	full := r.Bind(bare, "balcony", stm)
	require.Equal(t, "romeo@example.com/balcony", full.String())
}

func TestRouterBindKickDisconnectsPreviousOwner(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	r.SetConflictPolicy(ConflictKick)

	bare := mustJID(t, "romeo@example.com")
	first := &fakeStream{id: "conn-1", auth: true}
	second := &fakeStream{id: "conn-2", auth: true}

	r.Bind(bare, "phone", first)
	full := r.Bind(bare, "phone", second)

	require.Equal(t, "romeo@example.com/phone", full.String())
	require.Equal(t, ErrConflictingSession, first.disc)
}

func TestRouterUnregisterStreamRemovesBindings(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	bare := mustJID(t, "romeo@example.com")
	stm := &fakeStream{id: "conn-1", auth: true}
	r.Bind(bare, "phone", stm)

	n := r.UnregisterStream(stm)
	require.Equal(t, 1, n)
	require.Empty(t, r.StreamsMatchingJID(bare))
}

func TestRouterStreamsMatchingJID(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	bare := mustJID(t, "romeo@example.com")
	stm1 := &fakeStream{id: "conn-1", auth: true}
	stm2 := &fakeStream{id: "conn-2", auth: true}
	r.Bind(bare, "phone", stm1)
	r.Bind(bare, "laptop", stm2)

	require.Len(t, r.StreamsMatchingJID(bare), 2)
}

func TestRouterShutdownDisconnectsEveryStream(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	bare := mustJID(t, "romeo@example.com")
	stm1 := &fakeStream{id: "conn-1", auth: true}
	stm2 := &fakeStream{id: "conn-2", auth: true}
	r.Bind(bare, "phone", stm1)
	r.Bind(bare, "laptop", stm2)

	sentinel := errors.New("test: shutting down")
	r.Shutdown(sentinel)
	require.Equal(t, sentinel, stm1.disc)
	require.Equal(t, sentinel, stm2.disc)
}

func TestRouterIsLocalDomain(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	require.True(t, r.IsLocalDomain("example.com"))
	require.False(t, r.IsLocalDomain("other.com"))
}
