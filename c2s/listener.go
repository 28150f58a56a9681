/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package c2s

import (
	"crypto/tls"
	"errors"
	"net"

	"github.com/ortuman/xmppd/auth"
	"github.com/ortuman/xmppd/log"
	"github.com/ortuman/xmppd/router"
)

// Listener accepts TCP connections and spawns a Stream actor for each one.
type Listener struct {
	addr     string
	rt       *router.Router
	provider auth.Provider
	tlsCfg   *tls.Config
	cfg      *Config

	ln net.Listener
}

// NewListener returns a Listener bound to addr (not yet accepting).
func NewListener(addr string, rt *router.Router, provider auth.Provider, tlsCfg *tls.Config, cfg *Config) *Listener {
	return &Listener{addr: addr, rt: rt, provider: provider, tlsCfg: tlsCfg, cfg: cfg}
}

// ListenAndServe binds addr and accepts connections until Close is called
// or Accept returns a non-temporary error. After Close it returns nil.
func (l *Listener) ListenAndServe() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.ln = ln
	log.Infof("c2s: listening at %s", l.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				continue
			}
			return err
		}
		New(conn, l.tlsCfg, l.rt, l.provider, l.cfg)
	}
}

// Close stops accepting new connections. In-flight Stream actors are
// unaffected; graceful shutdown of those is the caller's (cmd/xmppd's)
// responsibility via Router-level broadcast.
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}
