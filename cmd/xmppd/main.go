/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ortuman/xmppd/auth"
	"github.com/ortuman/xmppd/c2s"
	"github.com/ortuman/xmppd/config"
	"github.com/ortuman/xmppd/log"
	"github.com/ortuman/xmppd/router"
	"github.com/ortuman/xmppd/storage"
	"github.com/ortuman/xmppd/streamerror"
)

func main() {
	configPath := flag.String("config", "./xmppd.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("xmppd: %v", err)
	}

	provider, err := buildProvider(cfg.Storage)
	if err != nil {
		log.Fatalf("xmppd: %v", err)
	}

	hosts := cfg.Server.VirtualHosts
	if len(hosts) == 0 {
		hosts = []string{cfg.Server.Domain}
	}
	rt := router.New(hosts, router.ServerInfo{Name: "xmppd", Version: "1.0.0"})
	rt.SetConflictPolicy(router.ConflictSuffix)

	tlsCfg, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("xmppd: %v", err)
	}

	c2sCfg := &c2s.Config{
		Domain:          cfg.Server.Domain,
		MaxStanzaSize:   cfg.Connection.MaxStanzaBytes,
		SASL:            cfg.SASL.Mechanisms,
		RequireTLS:      cfg.TLS.Required,
		ConnectTimeout:  cfg.Connection.ConnectTimeout,
		IdleTimeout:     cfg.Connection.IdleTimeout,
		MaxSASLAttempts: cfg.SASL.MaxAttempts,
		SASLTimeout:     cfg.SASL.Timeout,
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln := c2s.NewListener(addr, rt, provider, tlsCfg, c2sCfg)

	go func() {
		if err := ln.ListenAndServe(); err != nil {
			log.Fatalf("xmppd: %v", err)
		}
	}()

	waitForShutdown(ln, rt)
}

func buildProvider(cfg config.Storage) (auth.Provider, error) {
	switch cfg.Driver {
	case "", "memory":
		return storage.NewMemoryProvider(), nil
	case "postgres", "mysql", "sqlite3":
		return storage.NewSQLProvider(cfg.Driver, cfg.DSN)
	default:
		return nil, fmt.Errorf("xmppd: unknown storage driver %q", cfg.Driver)
	}
}

func buildTLSConfig(cfg config.TLS) (*tls.Config, error) {
	if !cfg.Enabled {
		return &tls.Config{}, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.KeystorePath, cfg.KeystoreKeyPath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// waitForShutdown blocks until SIGINT/SIGTERM, then performs the graceful
// shutdown spec.md §5 describes: stop accepting connections, broadcast
// <system-shutdown/>, give live streams a short deadline to drain.
func waitForShutdown(ln *c2s.Listener, rt *router.Router) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("xmppd: shutting down")
	ln.Close()
	rt.Shutdown(streamerror.ErrSystemShutdown)
	time.Sleep(5 * time.Second)
}
