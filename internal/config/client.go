// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig is the full configuration for nsyncd-client.
type ClientConfig struct {
	Client    ClientIdentity `yaml:"client"`
	Server    ServerAddr     `yaml:"server"`
	TLS       TLSClient      `yaml:"tls"`
	Watcher   WatcherInfo    `yaml:"watcher"`
	Reconnect ReconnectInfo  `yaml:"reconnect"`
	Throttle  ThrottleInfo   `yaml:"throttle"`
	Logging   LoggingInfo    `yaml:"logging"`
}

// ClientIdentity names the user whose sync directory this device mirrors.
type ClientIdentity struct {
	Username string `yaml:"username"`
	SyncDir  string `yaml:"sync_dir"` // default: "./sync_dir_<username>"
}

// ServerAddr is the address of the sync server.
type ServerAddr struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// TLSClient optionally verifies the server's certificate against a CA.
// Leaving CACert empty dials plain TCP. There is no client certificate:
// the protocol's own authentication is the username sent at login, per
// spec §1 — TLS here only hardens the transport, it does not add
// credential-based auth.
type TLSClient struct {
	CACert string `yaml:"ca_cert"`
}

// Enabled reports whether the client should dial over TLS.
func (t TLSClient) Enabled() bool {
	return t.CACert != ""
}

// WatcherInfo configures the directory watcher tick interval.
type WatcherInfo struct {
	Interval time.Duration `yaml:"interval"` // default: 1s, per spec §4.7
}

// ReconnectInfo configures the capped exponential backoff between
// reconnect attempts, grounded on the teacher's daemon backoff schedule.
type ReconnectInfo struct {
	InitialDelay time.Duration `yaml:"initial_delay"` // default: 500ms
	MaxDelay     time.Duration `yaml:"max_delay"`     // default: 30s
}

// ThrottleInfo optionally bandwidth-limits uploads. Downloads are not
// throttled.
type ThrottleInfo struct {
	BytesPerSec string `yaml:"bytes_per_sec"` // e.g. "5mb"; empty disables throttling
	RawBytes    int64  `yaml:"-"`
}

// LoadClientConfig reads and validates a client YAML config file.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading client config: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}
	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.Client.Username == "" {
		return fmt.Errorf("client.username is required")
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}

	if c.Client.SyncDir == "" {
		c.Client.SyncDir = "sync_dir_" + c.Client.Username
	}

	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}

	if c.Watcher.Interval <= 0 {
		c.Watcher.Interval = 1 * time.Second
	}

	if c.Reconnect.InitialDelay <= 0 {
		c.Reconnect.InitialDelay = 500 * time.Millisecond
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = 30 * time.Second
	}

	if c.Throttle.BytesPerSec != "" {
		parsed, err := ParseByteSize(c.Throttle.BytesPerSec)
		if err != nil {
			return fmt.Errorf("throttle.bytes_per_sec: %w", err)
		}
		c.Throttle.RawBytes = parsed
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}
