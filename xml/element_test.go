/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestElementToXML(t *testing.T) {
	e := NewElementNamespace("message", "jabber:client")
	e.SetAttribute("to", "juliet@example.com")
	e.SetAttribute("id", "abc1")
	body := NewElementName("body")
	body.SetText("hello & <goodbye>")
	e.AppendElement(body)

	got := e.String()
	require.Contains(t, got, `<message xmlns="jabber:client" to="juliet@example.com" id="abc1">`)
	require.Contains(t, got, "hello &amp; &lt;goodbye&gt;")
	require.Contains(t, got, "</message>")
}

func TestElementEmptySelfCloses(t *testing.T) {
	e := NewElementName("starttls")
	require.Equal(t, "<starttls/>", e.String())
}

func TestElementSetAttributeReplaces(t *testing.T) {
	e := NewElementName("iq")
	e.SetAttribute("type", "get")
	e.SetAttribute("type", "set")
	require.Equal(t, "set", e.Type())

	e.RemoveAttribute("type")
	require.Equal(t, "", e.Type())
}

func TestElementSetChildLookup(t *testing.T) {
	e := NewElementName("presence")
	priority := NewElementName("priority")
	priority.SetText("5")
	e.AppendElement(priority)

	require.NotNil(t, e.Elements().Child("priority"))
	require.Nil(t, e.Elements().Child("show"))
}
