/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package router implements the shared, concurrency-safe parts of the
// server: the resource/session registry (C5) and the stanza router (C6).
// Unlike the teacher's package-level router.Instance() singleton, Router is
// an ordinary injectable value, so independent test suites (and, in
// principle, independent virtual hosts) can each own one.
package router

import (
	"errors"
	"sync"

	"github.com/ortuman/xmppd/xml"
)

// Routing-level sentinel errors (C6). These are distinct from stanza/stream
// protocol errors: they describe *why* local delivery could not proceed, and
// it is the caller (package c2s) that decides the wire-visible consequence.
var (
	ErrResourceNotFound   = errors.New("router: no session bound to that full JID")
	ErrNotAuthenticated   = errors.New("router: recipient bare JID has no bound session")
	ErrNotExistingAccount = errors.New("router: no such local account")
	ErrBlockedJID         = errors.New("router: sender is blocked by recipient")
)

// C2S is the subset of a bound client connection the router needs in order
// to deliver a stanza to it. Package c2s's *c2s.Stream satisfies it.
type C2S interface {
	ID() string
	JID() *xml.JID
	IsAuthenticated() bool
	Presence() *xml.Presence
	SendElement(element xml.XElement)
	Disconnect(err error)
}

// ServerInfo supplies the literal values the router's built-in
// jabber:iq:version and disco#info handlers reply with (spec.md §4.6's
// "Expansion" in SPEC_FULL.md).
type ServerInfo struct {
	Name    string
	Version string
}

// Router owns the shared state that must be visible to every connection:
// the resource registry and the bare/full JID -> live stream index. All
// public methods are safe for concurrent use from many connections' actor
// goroutines at once.
type Router struct {
	registry *Registry
	domains  map[string]bool
	info     ServerInfo
	policy   ConflictPolicy

	mu      sync.RWMutex
	streams map[string]C2S // connection id -> live stream
}

// New returns a Router serving the given virtual hosts.
func New(domains []string, info ServerInfo) *Router {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[d] = true
	}
	return &Router{
		registry: NewRegistry(),
		domains:  set,
		info:     info,
		streams:  make(map[string]C2S),
	}
}

// SetConflictPolicy changes how resource binding conflicts are resolved.
// Defaults to ConflictSuffix.
func (r *Router) SetConflictPolicy(p ConflictPolicy) { r.policy = p }

// IsLocalDomain reports whether domain is one of the server's virtual
// hosts.
func (r *Router) IsLocalDomain(domain string) bool { return r.domains[domain] }

// Bind assigns stm a resource under bareJID, registering it for routing.
// On a resource conflict under ConflictKick, the requested resource is
// rebound to stm and the previously bound connection is then disconnected
// with ErrConflictingSession (a <conflict/> stream error).
func (r *Router) Bind(bareJID *xml.JID, requestedResource string, stm C2S) *xml.JID {
	resource, kicked := r.registry.Bind(bareJID.String(), requestedResource, stm.ID(), r.policy)
	if len(kicked) > 0 {
		r.mu.RLock()
		victim := r.streams[kicked]
		r.mu.RUnlock()
		if victim != nil {
			victim.Disconnect(ErrConflictingSession)
		}
	}
	r.mu.Lock()
	r.streams[stm.ID()] = stm
	r.mu.Unlock()

	full, _ := xml.NewJID(bareJID.Node(), bareJID.Domain(), resource, false)
	return full
}

// ErrConflictingSession is the sentinel Router.Bind's ConflictKick path
// disconnects the losing stream with; package c2s maps it onto the
// stream-level <conflict/> condition. Defined here rather than imported
// from package streamerror, so package router does not depend on
// streamerror.
var ErrConflictingSession = errors.New("router: resource binding conflict")

// Shutdown disconnects every live stream with err (spec.md §5's graceful
// shutdown: "broadcasts <stream:error><system-shutdown/> to each
// connection"). The caller is responsible for bounding how long it then
// waits before forcing the listener closed.
func (r *Router) Shutdown(err error) {
	r.mu.RLock()
	streams := make([]C2S, 0, len(r.streams))
	for _, stm := range r.streams {
		streams = append(streams, stm)
	}
	r.mu.RUnlock()
	for _, stm := range streams {
		stm.Disconnect(err)
	}
}

// UnregisterStream removes every resource binding and live-stream entry
// owned by stm (called once, when the connection closes).
func (r *Router) UnregisterStream(stm C2S) int {
	r.mu.Lock()
	delete(r.streams, stm.ID())
	r.mu.Unlock()
	return r.registry.ReleaseConnection(stm.ID())
}

// Release removes a single (bareJID, resource) binding if stm owns it.
func (r *Router) Release(bareJID *xml.JID, resource string, stm C2S) bool {
	return r.registry.Release(bareJID.String(), resource, stm.ID())
}

// StreamsMatchingJID returns every live stream bound under bareJID's bare
// form.
func (r *Router) StreamsMatchingJID(bareJID *xml.JID) []C2S {
	bindings := r.registry.LookupAll(bareJID.ToBareJID().String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]C2S, 0, len(bindings))
	for _, b := range bindings {
		if s := r.streams[b.ConnectionID]; s != nil {
			out = append(out, s)
		}
	}
	return out
}

// streamFor resolves a single full JID to its live stream, if bound.
func (r *Router) streamFor(full *xml.JID) C2S {
	connID, ok := r.registry.Lookup(full.ToBareJID().String(), full.Resource())
	if !ok {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streams[connID]
}

// highestPriorityStream picks, among the sessions bound under bareJID, the
// one with the numerically highest advertised presence priority
// (spec.md §4.6: "for messages, deliver to the highest-priority available
// session").
func (r *Router) highestPriorityStream(bareJID *xml.JID) C2S {
	candidates := r.StreamsMatchingJID(bareJID)
	var best C2S
	bestPriority := -129 // below the valid [-128,127] range
	for _, s := range candidates {
		if !s.IsAuthenticated() {
			continue
		}
		p := s.Presence()
		if p == nil || !p.IsAvailable() {
			continue
		}
		if int(p.Priority()) > bestPriority {
			best = s
			bestPriority = int(p.Priority())
		}
	}
	return best
}
