/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package c2s implements the client-to-server connection state machine
// (C2): stream negotiation, STARTTLS, SASL, resource binding, and stanza
// routing for a single connection, as one actor-mailbox goroutine pair.
package c2s

import (
	"crypto/tls"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ortuman/xmppd/auth"
	"github.com/ortuman/xmppd/log"
	"github.com/ortuman/xmppd/router"
	"github.com/ortuman/xmppd/streamerror"
	"github.com/ortuman/xmppd/xml"
	"github.com/pborman/uuid"
)

const mailboxSize = 64

const (
	connecting uint32 = iota
	connected
	authenticating
	authenticated
	sessionStarted
	disconnected
)

const (
	jabberClientNamespace = "jabber:client"
	streamNamespace       = "http://etherx.jabber.org/streams"
	tlsNamespace          = "urn:ietf:params:xml:ns:xmpp-tls"
	bindNamespace         = "urn:ietf:params:xml:ns:xmpp-bind"
	sessionNamespace      = "urn:ietf:params:xml:ns:xmpp-session"
	saslNamespace         = "urn:ietf:params:xml:ns:xmpp-sasl"
)

// context keys
const (
	usernameCtxKey      = "username"
	resourceCtxKey      = "resource"
	jidCtxKey           = "jid"
	securedCtxKey       = "secured"
	authenticatedCtxKey = "authenticated"
	presenceCtxKey      = "presence"
)

// Stream is a single client connection's actor. It implements router.C2S.
type Stream struct {
	cfg      *Config
	router   *router.Router
	provider auth.Provider
	tlsCfg   *tls.Config

	conn   net.Conn
	parser *xml.Parser

	connID   string // internal correlation id (google/uuid) — ID()
	streamID string // protocol-visible stream id (pborman/uuid)

	state uint32
	ctx   *router.Context

	authrs       []auth.Authenticator
	activeAuthr  auth.Authenticator
	authAttempts int

	connectTm *time.Timer
	idleTm    *time.Timer
	saslTm    *time.Timer

	mailbox chan func()
}

// New starts a connection actor reading and writing conn, and returns the
// live Stream. The caller (package c2s's listener, or a test) owns conn's
// lifecycle only until New is called; from then on the actor owns it.
func New(conn net.Conn, tlsCfg *tls.Config, rt *router.Router, provider auth.Provider, cfg *Config) *Stream {
	s := &Stream{
		cfg:      cfg,
		router:   rt,
		provider: provider,
		tlsCfg:   tlsCfg,
		conn:     conn,
		parser:   xml.NewParser(conn, cfg.MaxStanzaSize),
		connID:   router.NewConnectionID(),
		streamID: uuid.New(),
		state:    connecting,
		ctx:      router.NewContext(),
		mailbox:  make(chan func(), mailboxSize),
	}
	j, _ := xml.NewJID("", cfg.Domain, "", true)
	s.ctx.SetObject(j, jidCtxKey)
	s.initAuthenticators()

	if cfg.ConnectTimeout > 0 {
		s.connectTm = time.AfterFunc(cfg.ConnectTimeout, s.connectTimeout)
	}
	go s.actorLoop()
	go s.doRead()
	return s
}

// --- router.C2S --------------------------------------------------------

func (s *Stream) ID() string { return s.connID }

func (s *Stream) JID() *xml.JID { return s.ctx.Object(jidCtxKey).(*xml.JID) }

func (s *Stream) IsAuthenticated() bool { return s.ctx.Bool(authenticatedCtxKey) }

func (s *Stream) Presence() *xml.Presence {
	if p, ok := s.ctx.Object(presenceCtxKey).(*xml.Presence); ok {
		return p
	}
	return nil
}

func (s *Stream) SendElement(element xml.XElement) {
	s.mailbox <- func() { s.writeElement(element) }
}

func (s *Stream) Disconnect(err error) {
	s.mailbox <- func() { s.disconnect(err) }
}

func (s *Stream) Username() string { return s.ctx.String(usernameCtxKey) }
func (s *Stream) Resource() string { return s.ctx.String(resourceCtxKey) }
func (s *Stream) Domain() string   { return s.cfg.Domain }
func (s *Stream) IsSecured() bool  { return s.ctx.Bool(securedCtxKey) }

func (s *Stream) initAuthenticators() {
	for _, mech := range s.cfg.SASL {
		switch mech {
		case "PLAIN":
			s.authrs = append(s.authrs, auth.NewPlain(s.provider, s.cfg.Domain))
		case "SCRAM-SHA-1":
			s.authrs = append(s.authrs, auth.NewScramSHA1(s.provider, s.cfg.Domain))
		case "SCRAM-SHA-256":
			s.authrs = append(s.authrs, auth.NewScramSHA256(s.provider, s.cfg.Domain))
		}
	}
}

func (s *Stream) connectTimeout() {
	s.mailbox <- func() { s.disconnect(streamerror.ErrConnectionTimeout) }
}

func (s *Stream) idleTimeout() {
	s.mailbox <- func() { s.disconnect(streamerror.ErrConnectionTimeout) }
}

func (s *Stream) resetIdleTimer() {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	if s.idleTm != nil {
		s.idleTm.Stop()
	}
	s.idleTm = time.AfterFunc(s.cfg.IdleTimeout, s.idleTimeout)
}

func (s *Stream) startSASLTimer() {
	if s.cfg.SASLTimeout <= 0 {
		return
	}
	s.saslTm = time.AfterFunc(s.cfg.SASLTimeout, s.saslTimeout)
}

func (s *Stream) stopSASLTimer() {
	if s.saslTm != nil {
		s.saslTm.Stop()
		s.saslTm = nil
	}
}

// saslTimeout aborts a SASL exchange that has run longer than cfg.SASLTimeout
// (spec.md §5), the same way a failed mechanism step does: a <failure/> with
// temporary-auth-failure, counted against the attempt limit.
func (s *Stream) saslTimeout() {
	s.mailbox <- func() { s.failAuthentication(auth.ErrTemporaryAuthFailure) }
}

// --- element dispatch ----------------------------------------------------

func (s *Stream) handleElement(elem xml.XElement) {
	switch s.getState() {
	case connecting:
		s.handleConnecting(elem)
	case connected:
		s.handleConnected(elem)
	case authenticating:
		s.handleAuthenticating(elem)
	case authenticated:
		s.handleAuthenticated(elem)
	case sessionStarted:
		s.handleSessionStarted(elem)
	}
}

func (s *Stream) handleConnecting(elem xml.XElement) {
	if s.connectTm != nil {
		s.connectTm.Stop()
		s.connectTm = nil
	}
	if err := s.validateStreamElement(elem); err != nil {
		s.disconnectWithStreamError(err)
		return
	}
	s.openStream()

	features := xml.NewElementName("stream:features")
	features.SetAttribute("xmlns:stream", streamNamespace)
	features.SetAttribute("version", "1.0")

	if !s.IsAuthenticated() {
		features.AppendElements(s.unauthenticatedFeatures())
		s.setState(connected)
	} else {
		features.AppendElements(s.authenticatedFeatures())
		s.setState(authenticated)
	}
	s.writeElement(features)
}

func (s *Stream) unauthenticatedFeatures() []xml.XElement {
	var features []xml.XElement

	if !s.IsSecured() {
		startTLS := xml.NewElementNamespace("starttls", tlsNamespace)
		startTLS.AppendElement(xml.NewElementName("required"))
		features = append(features, startTLS)
	}

	if !s.cfg.RequireTLS || s.IsSecured() {
		if len(s.authrs) > 0 {
			mechanisms := xml.NewElementNamespace("mechanisms", saslNamespace)
			for _, authr := range s.authrs {
				m := xml.NewElementName("mechanism")
				m.SetText(authr.Mechanism())
				mechanisms.AppendElement(m)
			}
			features = append(features, mechanisms)
		}
	}
	return features
}

func (s *Stream) authenticatedFeatures() []xml.XElement {
	bind := xml.NewElementNamespace("bind", bindNamespace)
	bind.AppendElement(xml.NewElementName("required"))

	// session is advertised for RFC 6121 §3 backward compatibility, though
	// handling it is now a no-op (see startSession).
	session := xml.NewElementNamespace("session", sessionNamespace)

	return []xml.XElement{bind, session}
}

func (s *Stream) handleConnected(elem xml.XElement) {
	switch elem.Name() {
	case "starttls":
		if ns := elem.Namespace(); len(ns) > 0 && ns != tlsNamespace {
			s.disconnectWithStreamError(streamerror.ErrInvalidNamespace)
			return
		}
		s.proceedStartTLS()

	case "auth":
		if elem.Namespace() != saslNamespace {
			s.disconnectWithStreamError(streamerror.ErrInvalidNamespace)
			return
		}
		s.startAuthentication(elem)

	default:
		s.disconnectWithStreamError(streamerror.ErrNotAuthorized)
	}
}

func (s *Stream) handleAuthenticating(elem xml.XElement) {
	if elem.Namespace() != saslNamespace {
		s.disconnectWithStreamError(streamerror.ErrInvalidNamespace)
		return
	}
	authr := s.activeAuthr
	step, err := authr.ProcessElement(elem, s.writeElement)
	if err != nil {
		s.failAuthentication(err)
		return
	}
	if step == auth.Done {
		if authr.Authenticated() {
			s.finishAuthentication(authr.Username())
		} else {
			s.failAuthentication(auth.ErrNotAuthorized)
		}
	}
}

func (s *Stream) handleAuthenticated(elem xml.XElement) {
	if len(s.Resource()) > 0 && (elem.Name() != "iq" || elem.Elements().ChildNamespace("session", sessionNamespace) == nil) {
		// bound without a <session/> IQ: the first other stanza starts the session.
		s.setState(sessionStarted)
		s.handleSessionStarted(elem)
		return
	}
	if elem.Name() != "iq" {
		s.disconnectWithStreamError(streamerror.ErrUnsupportedStanzaType)
		return
	}
	stanza, err := s.buildStanza(elem, true)
	if err != nil {
		s.handleElementError(elem, err)
		return
	}
	iq := stanza.(*xml.IQ)
	if len(s.Resource()) == 0 {
		s.bindResource(iq)
	} else {
		s.startSession(iq)
	}
}

func (s *Stream) handleSessionStarted(elem xml.XElement) {
	s.resetIdleTimer()

	stanza, err := s.buildStanza(elem, true)
	if err != nil {
		s.handleElementError(elem, err)
		return
	}
	s.processStanza(stanza)
}

// --- STARTTLS ------------------------------------------------------------

func (s *Stream) proceedStartTLS() {
	if s.IsSecured() {
		s.disconnectWithStreamError(streamerror.ErrNotAuthorized)
		return
	}
	s.writeElement(xml.NewElementNamespace("proceed", tlsNamespace))

	tlsConn := tls.Server(s.conn, s.tlsCfg)
	s.conn = tlsConn
	s.ctx.SetBool(true, securedCtxKey)

	log.Infof("c2s: stream secured (id: %s)", s.connID)
	s.restart()
}

// --- SASL ------------------------------------------------------------------

func (s *Stream) startAuthentication(elem xml.XElement) {
	mechanism := elem.Attributes().Get("mechanism")
	for _, authr := range s.authrs {
		if authr.Mechanism() != mechanism {
			continue
		}
		step, err := authr.ProcessElement(elem, s.writeElement)
		if err != nil {
			s.failAuthentication(err)
			return
		}
		if step == auth.Done && authr.Authenticated() {
			s.finishAuthentication(authr.Username())
			return
		}
		s.activeAuthr = authr
		s.setState(authenticating)
		s.startSASLTimer()
		return
	}
	s.failAuthentication(auth.ErrInvalidMechanism)
}

func (s *Stream) finishAuthentication(username string) {
	s.stopSASLTimer()
	s.authAttempts = 0
	if s.activeAuthr != nil {
		s.activeAuthr.Reset()
		s.activeAuthr = nil
	}
	j, _ := xml.NewJID(username, s.cfg.Domain, "", true)
	s.ctx.SetString(username, usernameCtxKey)
	s.ctx.SetBool(true, authenticatedCtxKey)
	s.ctx.SetObject(j, jidCtxKey)
	s.restart()
}

// failAuthentication replies <failure/> and, per spec.md §4.3 ("default 3:
// further attempts yield <policy-violation> and stream close"), counts the
// attempt against cfg.MaxSASLAttempts — disconnecting once the budget is
// exhausted instead of letting the client retry <auth/> forever.
func (s *Stream) failAuthentication(err error) {
	s.stopSASLTimer()
	saslErr, ok := err.(*auth.Error)
	if !ok {
		log.Error(err)
		saslErr = auth.ErrTemporaryAuthFailure
	}
	s.writeElement(saslErr.Element())
	if s.activeAuthr != nil {
		s.activeAuthr.Reset()
		s.activeAuthr = nil
	}
	s.authAttempts++
	if s.cfg.MaxSASLAttempts > 0 && s.authAttempts >= s.cfg.MaxSASLAttempts {
		s.disconnectWithStreamError(streamerror.ErrPolicyViolation)
		return
	}
	s.setState(connected)
}

// --- binding & session ---------------------------------------------------

func (s *Stream) bindResource(iq *xml.IQ) {
	bind := iq.Elements().ChildNamespace("bind", bindNamespace)
	if bind == nil {
		s.writeElement(iq.NotAllowedError())
		return
	}
	var resource string
	if r := bind.Elements().Child("resource"); r != nil {
		resource = r.Text()
	}
	// resource is left empty here when the client didn't request one;
	// Registry.Bind (via Router.Bind) generates one in that case.
	bare := s.JID().ToBareJID()
	full := s.router.Bind(bare, resource, s)

	s.ctx.SetString(full.Resource(), resourceCtxKey)
	s.ctx.SetObject(full, jidCtxKey)

	log.Infof("c2s: bound resource (%s)", full.String())

	result := xml.NewIQType(iq.ID(), xml.ResultType)
	binded := xml.NewElementNamespace("bind", bindNamespace)
	jidEl := xml.NewElementName("jid")
	jidEl.SetText(full.String())
	binded.AppendElement(jidEl)
	result.AppendElement(binded)
	s.writeElement(result)
}

// startSession handles the legacy <session/> IQ as a no-op accept, per
// RFC 6121 §3: resource binding alone is sufficient to start exchanging
// stanzas, but older clients still send this and expect a result.
func (s *Stream) startSession(iq *xml.IQ) {
	if len(s.Resource()) == 0 {
		s.Disconnect(streamerror.ErrNotAuthorized)
		return
	}
	s.writeElement(iq.ResultIQ())
	s.setState(sessionStarted)
}

// --- stanza processing ---------------------------------------------------

func (s *Stream) processStanza(stanza xml.Stanza) {
	if p, ok := stanza.(*xml.Presence); ok {
		s.ctx.SetObject(p, presenceCtxKey)
	}

	err := s.router.Route(stanza, s)
	switch err {
	case nil:
		return
	case router.ErrResourceNotFound, router.ErrNotAuthenticated, router.ErrNotExistingAccount, router.ErrBlockedJID:
		if iq, ok := stanza.(*xml.IQ); ok {
			s.writeElement(iq.ServiceUnavailableError())
		}
		// message/presence: silent drop, per spec.md §4.6's fallback table.
	default:
		log.Error(err)
	}
}

// --- actor loop & transport -----------------------------------------------

func (s *Stream) actorLoop() {
	for {
		f := <-s.mailbox
		f()
		if s.getState() == disconnected {
			return
		}
	}
}

func (s *Stream) doRead() {
	elem, err := s.parser.ParseElement()
	if err == nil {
		s.mailbox <- func() { s.readElement(elem) }
		return
	}
	if s.getState() == disconnected {
		return
	}
	var discErr error
	switch err {
	case io.EOF, io.ErrUnexpectedEOF:
		// connection closed by peer; nothing more to say.
	case xml.ErrStreamClosedByPeer:
		// normal </stream:stream>; discErr stays nil.
	case xml.ErrTooLargeStanza:
		discErr = streamerror.ErrPolicyViolation
	case xml.ErrRestrictedXML:
		discErr = streamerror.ErrRestrictedXML
	case xml.ErrUnsupportedEncoding:
		discErr = streamerror.ErrUnsupportedEncoding
	default:
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			discErr = streamerror.ErrConnectionTimeout
		} else {
			discErr = streamerror.ErrInvalidXML
		}
	}
	s.mailbox <- func() { s.disconnect(discErr) }
}

func (s *Stream) readElement(elem xml.XElement) {
	if elem != nil {
		s.handleElement(elem)
	}
	if s.getState() != disconnected {
		go s.doRead()
	}
}

func (s *Stream) writeElement(element xml.XElement) {
	var sb strings.Builder
	element.ToXML(&sb, true)
	s.writeString(sb.String())
}

func (s *Stream) writeString(str string) {
	if _, err := io.WriteString(s.conn, str); err != nil {
		log.Error(err)
	}
}

func (s *Stream) openStream() {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?>`)
	open := xml.NewElementName("stream:stream")
	open.SetAttribute("xmlns", jabberClientNamespace)
	open.SetAttribute("xmlns:stream", streamNamespace)
	open.SetAttribute("id", s.streamID)
	open.SetAttribute("from", s.cfg.Domain)
	open.SetAttribute("version", "1.0")
	open.ToXML(&sb, false)
	s.writeString(sb.String())
}

func (s *Stream) buildStanza(elem xml.XElement, validateFrom bool) (xml.Stanza, error) {
	if err := s.validateNamespace(elem); err != nil {
		return nil, err
	}
	fromJID, toJID, err := s.extractAddresses(elem, validateFrom)
	if err != nil {
		return nil, err
	}
	switch elem.Name() {
	case "iq":
		iq, err := xml.NewIQFromElement(elem, fromJID, toJID)
		if err != nil {
			return nil, xml.ErrBadRequestCondition
		}
		return iq, nil
	case "presence":
		presence, err := xml.NewPresenceFromElement(elem, fromJID, toJID)
		if err != nil {
			return nil, xml.ErrBadRequestCondition
		}
		return presence, nil
	case "message":
		message, err := xml.NewMessageFromElement(elem, fromJID, toJID)
		if err != nil {
			return nil, xml.ErrBadRequestCondition
		}
		return message, nil
	}
	return nil, streamerror.ErrUnsupportedStanzaType
}

func (s *Stream) handleElementError(elem xml.XElement, err error) {
	switch e := err.(type) {
	case *streamerror.Error:
		s.disconnectWithStreamError(e)
	case *xml.StanzaError:
		s.writeElement(xml.NewErrorElementFromElement(elem, e, nil))
	default:
		log.Error(err)
	}
}

func (s *Stream) validateStreamElement(elem xml.XElement) *streamerror.Error {
	if elem.Name() != "stream:stream" {
		return streamerror.ErrUnsupportedStanzaType
	}
	if elem.Namespace() != jabberClientNamespace || elem.Attributes().Get("xmlns:stream") != streamNamespace {
		return streamerror.ErrInvalidNamespace
	}
	if to := elem.To(); len(to) > 0 && to != s.cfg.Domain {
		return streamerror.ErrHostUnknown
	}
	if elem.Version() != "1.0" {
		return streamerror.ErrUnsupportedVersion
	}
	return nil
}

func (s *Stream) validateNamespace(elem xml.XElement) *streamerror.Error {
	if ns := elem.Namespace(); len(ns) == 0 || ns == jabberClientNamespace {
		return nil
	}
	return streamerror.ErrInvalidNamespace
}

// extractAddresses validates and resolves a stanza's from/to. An invalid
// `from` (spec.md §4.6(1)) is a stanza error for message/presence, since the
// connection survives it, and a stream error only for an IQ, whose from
// mismatch is treated as fatal.
func (s *Stream) extractAddresses(elem xml.XElement, validateFrom bool) (fromJID, toJID *xml.JID, err error) {
	from := elem.From()
	if validateFrom && len(from) > 0 && !s.isValidFrom(from) {
		if elem.Name() == "iq" {
			return nil, nil, streamerror.ErrInvalidFrom
		}
		return nil, nil, xml.ErrInvalidFromCondition
	}
	fromJID = s.JID()

	to := elem.To()
	if len(to) > 0 {
		toJID, err = xml.NewJIDString(to, false)
		if err != nil {
			return nil, nil, xml.ErrJidMalformedCondition
		}
	} else {
		toJID = s.JID().ToBareJID()
	}
	return fromJID, toJID, nil
}

func (s *Stream) isValidFrom(from string) bool {
	j, err := xml.NewJIDString(from, false)
	if err != nil {
		return false
	}
	userJID := s.JID()
	if !j.MatchesBare(userJID) {
		return false
	}
	if len(j.Resource()) > 0 && j.Resource() != userJID.Resource() {
		return false
	}
	return true
}

func (s *Stream) disconnectWithStreamError(err *streamerror.Error) {
	if s.getState() == connecting {
		s.openStream()
	}
	s.writeString(err.Element())
	s.disconnectClosingStream(true)
}

func (s *Stream) disconnect(err error) {
	if err == nil {
		s.disconnectClosingStream(false)
		return
	}
	if strmErr, ok := err.(*streamerror.Error); ok {
		s.disconnectWithStreamError(strmErr)
		return
	}
	if err == router.ErrConflictingSession {
		s.disconnectWithStreamError(streamerror.ErrConflict)
		return
	}
	log.Error(err)
	s.disconnectClosingStream(false)
}

func (s *Stream) disconnectClosingStream(closeStream bool) {
	s.stopSASLTimer()
	if closeStream {
		s.writeString("</stream:stream>")
	}
	s.ctx.Terminate()
	if len(s.Resource()) > 0 {
		s.router.UnregisterStream(s)
	}
	s.setState(disconnected)
	s.conn.Close()
}

func (s *Stream) restart() {
	s.parser = xml.NewParser(s.conn, s.cfg.MaxStanzaSize)
	s.setState(connecting)
}

func (s *Stream) setState(state uint32) { atomic.StoreUint32(&s.state, state) }
func (s *Stream) getState() uint32      { return atomic.LoadUint32(&s.state) }
