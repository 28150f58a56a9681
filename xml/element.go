/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"strings"
)

// XElement is the minimal read interface every stanza and XML fragment in
// this package satisfies. The tokenizer builds Elements; stanza wrappers
// (Message, Presence, IQ) embed one and add typed accessors on top.
type XElement interface {
	Name() string
	Namespace() string
	Attributes() AttributeSet
	Elements() ElementSet
	Text() string

	To() string
	From() string
	ID() string
	Type() string
	Version() string

	ToXML(buf *strings.Builder, includeClosing bool)
	String() string
}

// Attribute is a single name/value XML attribute.
type Attribute struct {
	Name  string
	Value string
}

// AttributeSet is the ordered collection of attributes on an Element.
type AttributeSet []Attribute

// Get returns the value of the named attribute, or "" if absent.
func (as AttributeSet) Get(name string) string {
	for _, a := range as {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// ElementSet is the ordered collection of child elements of an Element.
type ElementSet []*Element

// Child returns the first child element with the given local name.
func (es ElementSet) Child(name string) *Element {
	for _, c := range es {
		if c.name == name {
			return c
		}
	}
	return nil
}

// ChildNamespace returns the first child with the given local name and
// namespace (matched against either the element's own xmlns or the
// attribute of the same name).
func (es ElementSet) ChildNamespace(name, namespace string) *Element {
	for _, c := range es {
		if c.name == name && c.Namespace() == namespace {
			return c
		}
	}
	return nil
}

// All returns every child element.
func (es ElementSet) All() []*Element { return es }

// Element is a concrete, mutable XML tree node. The tokenizer (Parser)
// produces Elements; stanza constructors wrap one per variant while keeping
// the original raw XML available for unmodified forwarding.
type Element struct {
	name       string
	attributes AttributeSet
	elements   ElementSet
	text       string
}

// NewElementName creates an empty element with the given local name.
func NewElementName(name string) *Element {
	return &Element{name: name}
}

// NewElementNamespace creates an empty element with the given local name and
// xmlns attribute.
func NewElementNamespace(name, namespace string) *Element {
	e := &Element{name: name}
	if len(namespace) > 0 {
		e.SetAttribute("xmlns", namespace)
	}
	return e
}

// NewElementFromElement makes a shallow copy of el, discarding any existing
// children and text (used when building a fresh reply envelope around an
// inner payload copied from the original stanza).
func NewElementFromElement(el XElement) *Element {
	cp := &Element{name: el.Name()}
	for _, a := range el.Attributes() {
		cp.SetAttribute(a.Name, a.Value)
	}
	return cp
}

func (e *Element) Name() string { return e.name }

func (e *Element) Namespace() string {
	if ns := e.attributes.Get("xmlns"); len(ns) > 0 {
		return ns
	}
	return ""
}

func (e *Element) Attributes() AttributeSet { return e.attributes }
func (e *Element) Elements() ElementSet     { return e.elements }
func (e *Element) Text() string             { return e.text }

func (e *Element) To() string      { return e.attributes.Get("to") }
func (e *Element) From() string    { return e.attributes.Get("from") }
func (e *Element) ID() string      { return e.attributes.Get("id") }
func (e *Element) Type() string    { return e.attributes.Get("type") }
func (e *Element) Version() string { return e.attributes.Get("version") }

// SetAttribute sets (or replaces) the named attribute.
func (e *Element) SetAttribute(name, value string) {
	for i, a := range e.attributes {
		if a.Name == name {
			e.attributes[i].Value = value
			return
		}
	}
	e.attributes = append(e.attributes, Attribute{Name: name, Value: value})
}

// RemoveAttribute deletes the named attribute, if present.
func (e *Element) RemoveAttribute(name string) {
	for i, a := range e.attributes {
		if a.Name == name {
			e.attributes = append(e.attributes[:i], e.attributes[i+1:]...)
			return
		}
	}
}

// SetText sets the element's character data.
func (e *Element) SetText(text string) { e.text = text }

// SetNamespace is shorthand for SetAttribute("xmlns", namespace).
func (e *Element) SetNamespace(namespace string) { e.SetAttribute("xmlns", namespace) }

// AppendElement appends a single child.
func (e *Element) AppendElement(child *Element) {
	e.elements = append(e.elements, child)
}

// AppendElements appends multiple children in order.
func (e *Element) AppendElements(children []XElement) {
	for _, c := range children {
		if el, ok := c.(*Element); ok {
			e.elements = append(e.elements, el)
		}
	}
}

// ToXML serializes the element (and its subtree) to buf. When
// includeClosing is false, the closing tag is omitted and an empty element
// is left open rather than self-closed (used for the initial stream header,
// whose closing tag arrives only at disconnect).
func (e *Element) ToXML(buf *strings.Builder, includeClosing bool) {
	buf.WriteByte('<')
	buf.WriteString(e.name)
	for _, a := range e.attributes {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		escapeInto(buf, a.Value)
		buf.WriteByte('"')
	}
	if len(e.elements) == 0 && len(e.text) == 0 {
		if includeClosing {
			buf.WriteString("/>")
			return
		}
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('>')
	if len(e.text) > 0 {
		escapeInto(buf, e.text)
	}
	for _, c := range e.elements {
		c.ToXML(buf, true)
	}
	if includeClosing {
		buf.WriteString("</")
		buf.WriteString(e.name)
		buf.WriteByte('>')
	}
}

func (e *Element) String() string {
	var sb strings.Builder
	e.ToXML(&sb, true)
	return sb.String()
}

func escapeInto(buf *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '\'':
			buf.WriteString("&apos;")
		case '"':
			buf.WriteString("&quot;")
		default:
			buf.WriteRune(r)
		}
	}
}
