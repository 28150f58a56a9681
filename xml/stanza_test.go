/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIQFromElementRequiresID(t *testing.T) {
	e := NewElementName("iq")
	e.SetAttribute("type", "get")
	query := NewElementNamespace("query", "jabber:iq:version")
	e.AppendElement(query)

	_, err := NewIQFromElement(e, nil, nil)
	require.Equal(t, ErrBadRequest, err)
}

func TestNewIQFromElementRequiresPayloadOnGetSet(t *testing.T) {
	e := NewElementName("iq")
	e.SetAttribute("id", "1")
	e.SetAttribute("type", "get")

	_, err := NewIQFromElement(e, nil, nil)
	require.Equal(t, ErrBadRequest, err)
}

func TestNewIQFromElementAcceptsResultWithoutPayload(t *testing.T) {
	e := NewElementName("iq")
	e.SetAttribute("id", "1")
	e.SetAttribute("type", "result")

	iq, err := NewIQFromElement(e, nil, nil)
	require.NoError(t, err)
	require.True(t, iq.IsResult())
}

func TestIQServiceUnavailableErrorPreservesID(t *testing.T) {
	from, _ := NewJIDString("romeo@example.com/balcony", false)
	to, _ := NewJIDString("example.com", true)

	e := NewElementName("iq")
	e.SetAttribute("id", "ping1")
	e.SetAttribute("type", "get")
	e.AppendElement(NewElementNamespace("ping", "urn:xmpp:ping"))

	iq, err := NewIQFromElement(e, from, to)
	require.NoError(t, err)

	reply := iq.ServiceUnavailableError()
	require.Equal(t, "ping1", reply.ID())
	require.Equal(t, ErrorType2String, reply.Type())
	require.Equal(t, to.String(), reply.From())
	require.Equal(t, from.String(), reply.To())
}

func TestNewPresenceFromElementPriorityCoercion(t *testing.T) {
	e := NewElementName("presence")
	priority := NewElementName("priority")
	priority.SetText("999") // out of int8 range
	e.AppendElement(priority)

	p, err := NewPresenceFromElement(e, nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, p.Priority())
}

func TestNewMessageFromElementRejectsBadType(t *testing.T) {
	e := NewElementName("message")
	e.SetAttribute("type", "bogus")
	_, err := NewMessageFromElement(e, nil, nil)
	require.Equal(t, ErrBadRequest, err)
}

func TestMessageBodyAccessors(t *testing.T) {
	e := NewElementName("message")
	e.SetAttribute("type", ChatType)
	body := NewElementName("body")
	body.SetText("hi")
	e.AppendElement(body)

	m, err := NewMessageFromElement(e, nil, nil)
	require.NoError(t, err)
	require.True(t, m.IsChat())
	require.True(t, m.IsMessageWithBody())
	require.Equal(t, "hi", m.Body())
}
