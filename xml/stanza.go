/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"strconv"
	"strings"
)

// Stanza is the tagged-variant sum type for the three top-level XMPP
// protocol elements. Every concrete variant wraps an *Element (preserving
// the original raw XML for unmodified forwarding) plus typed from/to JIDs.
type Stanza interface {
	XElement
	FromJID() *JID
	ToJID() *JID

	// SetAttribute overwrites the wire-visible attribute of the given
	// name. The router uses this to stamp its authoritative `from` onto
	// an outbound stanza (spec.md §4.6(1)); every variant gets it for
	// free through its embedded *Element.
	SetAttribute(name, value string)
}

// stanzaBuildError classifies the literal parse/validation failures the
// router and stream negotiator turn into stanza- or stream-level errors.
type stanzaBuildError struct{ msg string }

func (e *stanzaBuildError) Error() string { return e.msg }

// ErrBadRequest is returned by the stanza constructors when the inbound
// element fails a structural invariant (e.g. an IQ without an id).
var ErrBadRequest = &stanzaBuildError{msg: "xml: bad request"}

const (
	// Message types, RFC 6121 §5.2.2.
	NormalType    = "normal"
	ChatType      = "chat"
	GroupChatType = "groupchat"
	HeadlineType  = "headline"

	// Presence types, RFC 6121 §4.7.1.
	AvailableType   = "" // absence of a type attribute means "available"
	UnavailableType = "unavailable"
	SubscribeType   = "subscribe"
	SubscribedType  = "subscribed"
	UnsubscribeType = "unsubscribe"
	UnsubscribedType = "unsubscribed"
	ProbeType       = "probe"

	// IQ types, RFC 6120 §8.2.3.
	GetType    = "get"
	SetType    = "set"
	ResultType = "result"
)

// --- Message -----------------------------------------------------------

// Message models the <message/> stanza (RFC 6121 §5).
type Message struct {
	*Element
	from *JID
	to   *JID
}

// NewMessageFromElement validates el as a message stanza and wraps it,
// stamping the supplied from/to JIDs (the router is authoritative for
// `from`; `to` is whatever the sender addressed).
func NewMessageFromElement(el XElement, from, to *JID) (*Message, error) {
	if el.Name() != "message" {
		return nil, ErrBadRequest
	}
	msgType := el.Type()
	switch msgType {
	case "", NormalType, ChatType, GroupChatType, HeadlineType, ErrorType2String:
	default:
		return nil, ErrBadRequest
	}
	e := elementCopy(el)
	return &Message{Element: e, from: from, to: to}, nil
}

// NewMessageType builds an outbound message envelope (router replies).
func NewMessageType(id, msgType string) *Message {
	e := NewElementName("message")
	if len(id) > 0 {
		e.SetAttribute("id", id)
	}
	if len(msgType) > 0 {
		e.SetAttribute("type", msgType)
	}
	return &Message{Element: e}
}

func (m *Message) FromJID() *JID { return m.from }
func (m *Message) ToJID() *JID   { return m.to }

func (m *Message) IsChat() bool      { return m.Type() == ChatType }
func (m *Message) IsGroupChat() bool { return m.Type() == GroupChatType }

// IsMessageWithBody reports whether the stanza carries a non-empty <body/>.
func (m *Message) IsMessageWithBody() bool {
	b := m.Elements().Child("body")
	return b != nil && len(b.Text()) > 0
}

// Body returns the message body text, or "" if absent.
func (m *Message) Body() string {
	if b := m.Elements().Child("body"); b != nil {
		return b.Text()
	}
	return ""
}

// Subject returns the message subject text, or "" if absent.
func (m *Message) Subject() string {
	if s := m.Elements().Child("subject"); s != nil {
		return s.Text()
	}
	return ""
}

// Thread returns the message thread id, or "" if absent.
func (m *Message) Thread() string {
	if t := m.Elements().Child("thread"); t != nil {
		return t.Text()
	}
	return ""
}

// ServiceUnavailableError builds a <message type='error'> reply with a
// service-unavailable condition, preserving id and swapping from/to.
func (m *Message) ServiceUnavailableError() *Message {
	return m.withError(ErrServiceUnavailable)
}

func (m *Message) withError(se *StanzaError) *Message {
	reply := NewElementFromElement(m)
	reply.SetAttribute("type", ErrorType2String)
	reply.SetAttribute("from", m.To())
	reply.SetAttribute("to", m.From())
	reply.AppendElements(m.Elements().All2())
	reply.AppendElement(se.Element())
	return &Message{Element: reply, from: m.to, to: m.from}
}

// --- Presence ------------------------------------------------------------

// Presence models the <presence/> stanza (RFC 6121 §4).
type Presence struct {
	*Element
	from     *JID
	to       *JID
	priority int8
}

// NewPresenceFromElement validates el as a presence stanza and wraps it.
func NewPresenceFromElement(el XElement, from, to *JID) (*Presence, error) {
	if el.Name() != "presence" {
		return nil, ErrBadRequest
	}
	switch el.Type() {
	case AvailableType, UnavailableType, SubscribeType, SubscribedType,
		UnsubscribeType, UnsubscribedType, ProbeType, ErrorType2String:
	default:
		return nil, ErrBadRequest
	}
	e := elementCopy(el)
	p := &Presence{Element: e, from: from, to: to}
	p.priority = parsePriority(e)
	return p, nil
}

// NewPresence builds an outbound presence envelope.
func NewPresence(from, to *JID, presenceType string) *Presence {
	e := NewElementName("presence")
	if len(presenceType) > 0 {
		e.SetAttribute("type", presenceType)
	}
	if from != nil {
		e.SetAttribute("from", from.String())
	}
	if to != nil {
		e.SetAttribute("to", to.String())
	}
	return &Presence{Element: e, from: from, to: to}
}

func parsePriority(e *Element) int8 {
	p := e.Elements().Child("priority")
	if p == nil {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(p.Text()))
	if err != nil || v < -128 || v > 127 {
		// out-of-range (or unparsable) priority is coerced to 0 per spec.
		return 0
	}
	return int8(v)
}

func (p *Presence) FromJID() *JID { return p.from }
func (p *Presence) ToJID() *JID   { return p.to }

func (p *Presence) IsAvailable() bool   { return p.Type() == AvailableType }
func (p *Presence) IsUnavailable() bool { return p.Type() == UnavailableType }
func (p *Presence) IsSubscribe() bool   { return p.Type() == SubscribeType }
func (p *Presence) IsSubscribed() bool  { return p.Type() == SubscribedType }
func (p *Presence) IsProbe() bool       { return p.Type() == ProbeType }

// Priority returns the presence priority, coerced into [-128, 127].
func (p *Presence) Priority() int8 { return p.priority }

// Show returns the <show/> value, or "" if absent (plain available).
func (p *Presence) Show() string {
	if s := p.Elements().Child("show"); s != nil {
		return s.Text()
	}
	return ""
}

// Status returns the <status/> text, or "" if absent.
func (p *Presence) Status() string {
	if s := p.Elements().Child("status"); s != nil {
		return s.Text()
	}
	return ""
}

// ErrorWith builds a <presence type='error'> reply around se, preserving id
// and swapping from/to.
func (p *Presence) ErrorWith(se *StanzaError) *Presence {
	reply := NewErrorElementFromElement(p, se, nil)
	return &Presence{Element: reply, from: p.to, to: p.from}
}

// --- IQ --------------------------------------------------------------------

// IQ models the <iq/> stanza (RFC 6120 §8).
type IQ struct {
	*Element
	from *JID
	to   *JID
}

// NewIQFromElement validates el as an IQ stanza and wraps it. An IQ without
// a non-empty id, without a valid type, or a get/set without a payload is
// rejected with ErrBadRequest (spec.md §8: "IQ lacking id -> bad-request").
func NewIQFromElement(el XElement, from, to *JID) (*IQ, error) {
	if el.Name() != "iq" {
		return nil, ErrBadRequest
	}
	if len(el.ID()) == 0 {
		return nil, ErrBadRequest
	}
	switch el.Type() {
	case GetType, SetType:
		if len(el.Elements().All()) == 0 {
			return nil, ErrBadRequest
		}
	case ResultType, ErrorType2String:
	default:
		return nil, ErrBadRequest
	}
	e := elementCopy(el)
	return &IQ{Element: e, from: from, to: to}, nil
}

// NewIQType builds an outbound IQ envelope (router/server replies).
func NewIQType(id, iqType string) *IQ {
	e := NewElementName("iq")
	e.SetAttribute("id", id)
	e.SetAttribute("type", iqType)
	return &IQ{Element: e}
}

func (iq *IQ) FromJID() *JID { return iq.from }
func (iq *IQ) ToJID() *JID   { return iq.to }

func (iq *IQ) IsGet() bool    { return iq.Type() == GetType }
func (iq *IQ) IsSet() bool    { return iq.Type() == SetType }
func (iq *IQ) IsResult() bool { return iq.Type() == ResultType }

// QueryNamespace returns the namespace of the IQ's single child payload, or
// "" if the IQ carries no payload (result/error without a query child).
func (iq *IQ) QueryNamespace() string {
	children := iq.Elements().All()
	if len(children) == 0 {
		return ""
	}
	return children[0].Namespace()
}

// QueryPayload returns the IQ's single child payload element, or nil.
func (iq *IQ) QueryPayload() *Element {
	children := iq.Elements().All()
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

// ResultIQ builds a bare <iq type='result'> reply preserving id, swapping
// from/to.
func (iq *IQ) ResultIQ() *IQ {
	result := NewIQType(iq.ID(), ResultType)
	from, to := iq.replyAddresses()
	result.SetAttribute("from", from)
	result.SetAttribute("to", to)
	return result
}

// replyAddresses returns the from/to of a reply to iq: the request's to/from
// JIDs where set, else its wire to/from attributes.
func (iq *IQ) replyAddresses() (from, to string) {
	from, to = iq.To(), iq.From()
	if iq.to != nil {
		from = iq.to.String()
	}
	if iq.from != nil {
		to = iq.from.String()
	}
	return from, to
}

func (iq *IQ) withError(se *StanzaError) *IQ {
	reply := NewIQType(iq.ID(), ErrorType2String)
	from, to := iq.replyAddresses()
	reply.SetAttribute("from", from)
	reply.SetAttribute("to", to)
	reply.AppendElements(iq.Elements().All2())
	reply.AppendElement(se.Element())
	return reply
}

// ServiceUnavailableError builds an <iq type='error'> reply with a
// service-unavailable condition.
func (iq *IQ) ServiceUnavailableError() *IQ { return iq.withError(ErrServiceUnavailable) }

// FeatureNotImplementedError builds an <iq type='error'> reply with a
// feature-not-implemented condition.
func (iq *IQ) FeatureNotImplementedError() *IQ { return iq.withError(ErrFeatureNotImplemented) }

// BadRequestError builds an <iq type='error'> reply with a bad-request
// condition.
func (iq *IQ) BadRequestError() *IQ { return iq.withError(ErrBadRequestCondition) }

// NotAllowedError builds an <iq type='error'> reply with a not-allowed
// condition.
func (iq *IQ) NotAllowedError() *IQ { return iq.withError(ErrNotAllowed) }

// ConflictError builds an <iq type='error'> reply with a conflict
// condition.
func (iq *IQ) ConflictError() *IQ { return iq.withError(ErrConflict) }

// ResultWithPayload builds an <iq type='result'> reply carrying payload as
// its sole child.
func (iq *IQ) ResultWithPayload(payload *Element) *IQ {
	result := iq.ResultIQ()
	result.AppendElement(payload)
	return result
}

// --- shared helpers ----------------------------------------------------

func elementCopy(el XElement) *Element {
	if e, ok := el.(*Element); ok {
		return e
	}
	cp := NewElementName(el.Name())
	for _, a := range el.Attributes() {
		cp.SetAttribute(a.Name, a.Value)
	}
	cp.SetText(el.Text())
	for _, c := range el.Elements().All() {
		cp.AppendElement(c)
	}
	return cp
}

// All2 returns the element's children as an []XElement slice, used when
// re-appending a stanza's original children into a freshly built error
// envelope.
func (es ElementSet) All2() []XElement {
	out := make([]XElement, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}
