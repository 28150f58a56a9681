/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package router

import (
	"strconv"
	"testing"

	"github.com/ortuman/xmppd/xml"
	"github.com/stretchr/testify/require"
)

func iqGet(t *testing.T, id string, payload *xml.Element) *xml.Element {
	t.Helper()
	e := xml.NewElementName("iq")
	e.SetAttribute("id", id)
	e.SetAttribute("type", xml.GetType)
	if payload != nil {
		e.AppendElement(payload)
	}
	return e
}

func TestRouteToFullJIDDelivers(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	bare := mustJID(t, "juliet@example.com")
	stm := &fakeStream{id: "conn-1", auth: true}
	r.Bind(bare, "balcony", stm)

	to := mustJID(t, "juliet@example.com/balcony")
	msg := xml.NewMessageType("1", xml.ChatType)
	msg.SetAttribute("to", to.String())
	wrapped, err := xml.NewMessageFromElement(msg, nil, to)
	require.NoError(t, err)

	require.NoError(t, r.Route(wrapped, nil))
	require.Len(t, stm.sent, 1)
}

func TestRouteToFullJIDMissingReturnsResourceNotFound(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	to := mustJID(t, "juliet@example.com/balcony")
	msg := xml.NewMessageType("1", xml.ChatType)
	wrapped, err := xml.NewMessageFromElement(msg, nil, to)
	require.NoError(t, err)

	require.Equal(t, ErrResourceNotFound, r.Route(wrapped, nil))
}

func TestRouteMessageToBareJIDPicksHighestPriority(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	bare := mustJID(t, "juliet@example.com")

	low := &fakeStream{id: "conn-low", auth: true, presence: presenceWithPriority(t, 1)}
	high := &fakeStream{id: "conn-high", auth: true, presence: presenceWithPriority(t, 10)}
	r.Bind(bare, "phone", low)
	r.Bind(bare, "laptop", high)

	msg := xml.NewMessageType("1", xml.ChatType)
	wrapped, err := xml.NewMessageFromElement(msg, nil, bare)
	require.NoError(t, err)

	require.NoError(t, r.Route(wrapped, nil))
	require.Len(t, high.sent, 1)
	require.Empty(t, low.sent)
}

func TestRouteMessageToBareJIDNoSessionReturnsNotAuthenticated(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	bare := mustJID(t, "juliet@example.com")
	msg := xml.NewMessageType("1", xml.ChatType)
	wrapped, err := xml.NewMessageFromElement(msg, nil, bare)
	require.NoError(t, err)

	require.Equal(t, ErrNotAuthenticated, r.Route(wrapped, nil))
}

func TestRoutePresenceToBareJIDBroadcasts(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	bare := mustJID(t, "juliet@example.com")
	stm1 := &fakeStream{id: "conn-1", auth: true}
	stm2 := &fakeStream{id: "conn-2", auth: true}
	r.Bind(bare, "phone", stm1)
	r.Bind(bare, "laptop", stm2)

	pres := xml.NewPresence(nil, bare, xml.AvailableType)
	wrapped, err := xml.NewPresenceFromElement(pres, nil, bare)
	require.NoError(t, err)

	require.NoError(t, r.Route(wrapped, nil))
	require.Len(t, stm1.sent, 1)
	require.Len(t, stm2.sent, 1)
}

func TestRoutePresenceToBareJIDNoSessionsIsSilentDrop(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	bare := mustJID(t, "juliet@example.com")
	pres := xml.NewPresence(nil, bare, xml.AvailableType)
	wrapped, err := xml.NewPresenceFromElement(pres, nil, bare)
	require.NoError(t, err)

	require.NoError(t, r.Route(wrapped, nil))
}

func TestRouteIQToBareJIDReturnsResourceNotFound(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	bare := mustJID(t, "juliet@example.com")
	iq := iqGet(t, "1", xml.NewElementNamespace("ping", "urn:xmpp:ping"))
	wrapped, err := xml.NewIQFromElement(iq, nil, bare)
	require.NoError(t, err)

	require.Equal(t, ErrResourceNotFound, r.Route(wrapped, nil))
}

func TestRouteServerDirectedPing(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	server := mustJID(t, "example.com")
	iq := iqGet(t, "1", xml.NewElementNamespace("ping", "urn:xmpp:ping"))
	wrapped, err := xml.NewIQFromElement(iq, nil, server)
	require.NoError(t, err)

	sender := &fakeStream{id: "conn-1", auth: true}
	require.NoError(t, r.Route(wrapped, sender))
	require.Len(t, sender.sent, 1)

	reply, ok := sender.sent[0].(*xml.IQ)
	require.True(t, ok)
	require.True(t, reply.IsResult())
}

func TestRouteServerDirectedVersion(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "xmppd", Version: "9.9"})
	server := mustJID(t, "example.com")
	iq := iqGet(t, "1", xml.NewElementNamespace("query", "jabber:iq:version"))
	wrapped, err := xml.NewIQFromElement(iq, nil, server)
	require.NoError(t, err)

	sender := &fakeStream{id: "conn-1", auth: true}
	require.NoError(t, r.Route(wrapped, sender))

	reply := sender.sent[0].(*xml.IQ)
	payload := reply.QueryPayload()
	require.Equal(t, "xmppd", payload.Elements().Child("name").Text())
	require.Equal(t, "9.9", payload.Elements().Child("version").Text())
}

func TestRouteServerDirectedUnknownNamespaceIsFeatureNotImplemented(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	server := mustJID(t, "example.com")
	iq := iqGet(t, "1", xml.NewElementNamespace("query", "jabber:iq:roster"))
	wrapped, err := xml.NewIQFromElement(iq, nil, server)
	require.NoError(t, err)

	sender := &fakeStream{id: "conn-1", auth: true}
	require.NoError(t, r.Route(wrapped, sender))

	reply := sender.sent[0].(*xml.IQ)
	require.Equal(t, xml.ErrorType2String, reply.Type())
}

func presenceWithPriority(t *testing.T, priority int) *xml.Presence {
	t.Helper()
	e := xml.NewElementName("presence")
	p := xml.NewElementName("priority")
	p.SetText(strconv.Itoa(priority))
	e.AppendElement(p)
	pres, err := xml.NewPresenceFromElement(e, nil, nil)
	require.NoError(t, err)
	return pres
}

// TestRouteStampsFromOnDelivery covers spec.md §4.6(1): the router always
// overwrites the wire `from` with the sender's authoritative FromJID,
// whether the client supplied none or a forged one.
func TestRouteStampsFromOnDelivery(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	from := mustJID(t, "juliet@example.com/balcony")
	to := mustJID(t, "romeo@example.com/orchard")
	stm := &fakeStream{id: "conn-1", auth: true}
	r.Bind(to.ToBareJID(), "orchard", stm)

	msg := xml.NewMessageType("1", xml.ChatType)
	msg.SetAttribute("from", "impostor@evil.com")
	msg.SetAttribute("to", to.String())
	wrapped, err := xml.NewMessageFromElement(msg, from, to)
	require.NoError(t, err)

	require.NoError(t, r.Route(wrapped, nil))
	require.Len(t, stm.sent, 1)
	require.Equal(t, from.String(), stm.sent[0].From())
}

// TestRouteStampsFromToBareJID covers the routeToBareJID delivery path
// separately, since it serializes through a different branch of Route.
func TestRouteStampsFromToBareJID(t *testing.T) {
	r := New([]string{"example.com"}, ServerInfo{Name: "test", Version: "1.0"})
	from := mustJID(t, "juliet@example.com/balcony")
	bare := mustJID(t, "romeo@example.com")
	stm := &fakeStream{id: "conn-1", auth: true}
	r.Bind(bare, "orchard", stm)

	msg := xml.NewMessageType("1", xml.ChatType)
	wrapped, err := xml.NewMessageFromElement(msg, from, bare)
	require.NoError(t, err)

	require.NoError(t, r.Route(wrapped, nil))
	require.Len(t, stm.sent, 1)
	require.Equal(t, from.String(), stm.sent[0].From())
}
