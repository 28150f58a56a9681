/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package config loads the YAML configuration file (spec.md §6's external
// config surface) into typed Go structs.
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Config is the top-level configuration document.
type Config struct {
	Server     Server     `yaml:"server"`
	Connection Connection `yaml:"connection"`
	TLS        TLS        `yaml:"tls"`
	SASL       SASL       `yaml:"sasl"`
	Storage    Storage    `yaml:"storage"`
}

// Server configures the listener's virtual host(s).
type Server struct {
	Port         int      `yaml:"port"`
	Domain       string   `yaml:"domain"`
	VirtualHosts []string `yaml:"virtual_hosts"`
}

// Connection configures per-connection limits (spec.md §5).
type Connection struct {
	MaxConnections      int           `yaml:"max_connections"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	MaxConnectionsPerIP int           `yaml:"max_connections_per_ip"`
	MaxStanzaBytes      int           `yaml:"max_stanza_bytes"`
}

// TLS configures STARTTLS.
type TLS struct {
	Enabled         bool   `yaml:"enabled"`
	Required        bool   `yaml:"required"`
	KeystorePath    string `yaml:"keystore_path"`
	KeystoreKeyPath string `yaml:"keystore_key_path"`
	ClientAuth      string `yaml:"client_auth"`
}

// SASL configures the mechanism set (spec.md §4.3).
type SASL struct {
	Mechanisms []string      `yaml:"mechanisms"`
	MaxAttempts int          `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Storage selects and configures the auth.Provider implementation.
type Storage struct {
	Driver string `yaml:"driver"` // "memory", "postgres", "mysql", "sqlite3"
	DSN    string `yaml:"dsn"`
}

// Load reads and parses the YAML document at path.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: reading file")
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "config: parsing YAML")
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: Server{Port: 5222, Domain: "localhost"},
		Connection: Connection{
			MaxConnections:      10000,
			ConnectTimeout:      10 * time.Second,
			IdleTimeout:         30 * time.Minute,
			MaxConnectionsPerIP: 10,
			MaxStanzaBytes:      65536,
		},
		SASL: SASL{
			Mechanisms:  []string{"PLAIN", "SCRAM-SHA-1", "SCRAM-SHA-256"},
			MaxAttempts: 3,
			Timeout:     30 * time.Second,
		},
		Storage: Storage{Driver: "memory"},
	}
}
