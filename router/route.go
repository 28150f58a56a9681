/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package router

import (
	"github.com/ortuman/xmppd/xml"
)

const (
	pingNamespace     = "urn:xmpp:ping"
	versionNamespace  = "jabber:iq:version"
	discoInfoNS       = "http://jabber.org/protocol/disco#info"
	discoItemsNS      = "http://jabber.org/protocol/disco#items"
)

// Route delivers stanza to its local destination (C6). sender is the
// connection that produced it; Route stamps `from`, resolves `to`, and
// either hands the stanza to a target session, answers it itself
// (server-directed IQs), or falls back per spec.md §4.6's table. Route does
// not validate `from`; package c2s does that before calling it.
//
// The caller (package c2s) is responsible for turning a returned error into
// the appropriate wire-visible reply: a stanza error for IQs, silent drop
// for message/presence.
func (r *Router) Route(stanza xml.Stanza, sender C2S) error {
	stampFrom(stanza)

	to := stanza.ToJID()
	switch {
	case to == nil:
		// Absent `to`: server-directed, typically initial presence; the
		// caller already stamped it onto the sender's own bare/full JID.
		return r.routeServerDirected(stanza, sender)

	case r.IsLocalDomain(to.Domain()) && to.IsServer():
		return r.routeServerDirected(stanza, sender)

	case to.IsFull():
		return r.routeToFullJID(stanza, to)

	default:
		return r.routeToBareJID(stanza, to)
	}
}

// stampFrom overwrites the wire `from` attribute with the stanza's
// authoritative FromJID (the sender's bound full JID, per c2s's
// extractAddresses), per spec.md §4.6(1): "If stanza from is absent, stamp
// it with the sender's full JID. If present, it MUST equal the sender's
// full JID or bare JID" — the router is authoritative either way, so a
// client-supplied value that merely matched is overwritten with the exact
// same string, and an absent one is filled in for the first time.
func stampFrom(stanza xml.Stanza) {
	if from := stanza.FromJID(); from != nil {
		stanza.SetAttribute("from", from.String())
	}
}

func (r *Router) routeToFullJID(stanza xml.Stanza, to *xml.JID) error {
	stm := r.streamFor(to)
	if stm == nil {
		return ErrResourceNotFound
	}
	stm.SendElement(stanza)
	return nil
}

func (r *Router) routeToBareJID(stanza xml.Stanza, to *xml.JID) error {
	switch stanza.(type) {
	case *xml.Message:
		stm := r.highestPriorityStream(to)
		if stm == nil {
			return ErrNotAuthenticated
		}
		stm.SendElement(stanza)
		return nil

	case *xml.Presence:
		// Broadcast to every session bound under the bare JID; an empty
		// result (no one home) is a silent drop, not an error.
		for _, stm := range r.StreamsMatchingJID(to) {
			stm.SendElement(stanza)
		}
		return nil

	case *xml.IQ:
		return ErrResourceNotFound // -> service-unavailable, per spec.md §4.6

	default:
		return ErrResourceNotFound
	}
}

// routeServerDirected answers stanzas addressed to the bare server domain
// (or with no `to` at all). Only IQs get a synthesized reply; message and
// presence with no resolvable local target are simply absorbed.
func (r *Router) routeServerDirected(stanza xml.Stanza, sender C2S) error {
	iq, ok := stanza.(*xml.IQ)
	if !ok {
		return nil
	}
	if !iq.IsGet() && !iq.IsSet() {
		return nil
	}
	reply := r.handleServerIQ(iq)
	if sender != nil {
		sender.SendElement(reply)
	}
	return nil
}

// handleServerIQ answers the minimum set of server-handled IQ namespaces
// spec.md §4.6 names: urn:xmpp:ping, jabber:iq:version, and the two
// disco namespaces. Anything else gets feature-not-implemented.
func (r *Router) handleServerIQ(iq *xml.IQ) *xml.IQ {
	switch iq.QueryNamespace() {
	case pingNamespace:
		return iq.ResultIQ()

	case versionNamespace:
		payload := xml.NewElementNamespace("query", versionNamespace)
		name := xml.NewElementName("name")
		name.SetText(r.info.Name)
		version := xml.NewElementName("version")
		version.SetText(r.info.Version)
		payload.AppendElement(name)
		payload.AppendElement(version)
		return iq.ResultWithPayload(payload)

	case discoInfoNS:
		payload := xml.NewElementNamespace("query", discoInfoNS)
		identity := xml.NewElementName("identity")
		identity.SetAttribute("category", "server")
		identity.SetAttribute("type", "im")
		identity.SetAttribute("name", r.info.Name)
		payload.AppendElement(identity)
		for _, feature := range r.serverFeatures() {
			f := xml.NewElementName("feature")
			f.SetAttribute("var", feature)
			payload.AppendElement(f)
		}
		return iq.ResultWithPayload(payload)

	case discoItemsNS:
		payload := xml.NewElementNamespace("query", discoItemsNS)
		return iq.ResultWithPayload(payload)

	default:
		return iq.FeatureNotImplementedError()
	}
}

// serverFeatures lists the namespaces this server supports, for disco#info:
// the four built-in IQ namespaces. The list is fixed; it does not include
// SASL mechanisms or stream features.
func (r *Router) serverFeatures() []string {
	return []string{pingNamespace, versionNamespace, discoInfoNS, discoItemsNS}
}
