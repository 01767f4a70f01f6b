// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

// Package config loads and validates the YAML configuration files for
// the nsyncd server and client.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the full configuration for nsyncd-server.
type ServerConfig struct {
	Server  ServerListen `yaml:"server"`
	Storage StorageInfo  `yaml:"storage"`
	TLS     TLSServer    `yaml:"tls"`
	Logging LoggingInfo  `yaml:"logging"`
	Stats   StatsInfo    `yaml:"stats"`
}

// ServerListen is the listen address of the sync server.
type ServerListen struct {
	Listen string `yaml:"listen"`
}

// StorageInfo configures the on-disk root for per-user sync directories
// and an optional disk-free admission floor.
type StorageInfo struct {
	RootDir      string `yaml:"root_dir"`
	MinFreeSpace string `yaml:"min_free_space"` // e.g. "512mb"; empty disables the check
	MinFreeBytes int64  `yaml:"-"`
}

// TLSServer optionally configures a TLS listener. Leaving ServerCert and
// ServerKey empty keeps the server on plain TCP — TLS here is ambient
// transport hardening, never part of the wire protocol's own semantics
// (see spec §1 non-goals: encryption in transit is out of scope for the
// protocol, not forbidden as a deployment option).
type TLSServer struct {
	ServerCert string `yaml:"server_cert"`
	ServerKey  string `yaml:"server_key"`
}

// LoggingInfo configures the process-wide structured logger.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // optional; empty logs to stdout only
}

// StatsInfo configures the periodic stats-reporter log line.
type StatsInfo struct {
	Interval time.Duration `yaml:"interval"`
}

// Enabled reports whether the server should terminate TLS on its listener.
func (t TLSServer) Enabled() bool {
	return t.ServerCert != "" && t.ServerKey != ""
}

// LoadServerConfig reads and validates a server YAML config file.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}
	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Storage.RootDir == "" {
		return fmt.Errorf("storage.root_dir is required")
	}

	if c.Storage.MinFreeSpace != "" {
		parsed, err := ParseByteSize(c.Storage.MinFreeSpace)
		if err != nil {
			return fmt.Errorf("storage.min_free_space: %w", err)
		}
		c.Storage.MinFreeBytes = parsed
	}

	if c.TLS.ServerCert != "" && c.TLS.ServerKey == "" {
		return fmt.Errorf("tls.server_key is required when tls.server_cert is set")
	}
	if c.TLS.ServerKey != "" && c.TLS.ServerCert == "" {
		return fmt.Errorf("tls.server_cert is required when tls.server_key is set")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Stats.Interval <= 0 {
		c.Stats.Interval = 15 * time.Second
	}

	return nil
}
