// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/nishisan-dev/nsyncd/internal/config"
	"github.com/nishisan-dev/nsyncd/internal/pki"
)

// Engine is the top-level client: it owns the connection, the directory
// watcher, and the reconnect supervisor, and drives the initial sync on
// login per spec §4.8.
type Engine struct {
	cfg    *config.ClientConfig
	logger *slog.Logger

	table   *mtimeTable
	client  *Client
	watcher *Watcher
}

// NewEngine wires a Client, its NotificationRouter, and a Watcher sharing
// one mtimeTable, matching spec §4.6's requirement that notification
// processing and watcher mutation of the mtime table be serialized.
func NewEngine(cfg *config.ClientConfig, logger *slog.Logger) *Engine {
	table := newMtimeTable()

	var c *Client
	router := NewNotificationRouter(cfg.Client.SyncDir, table, func(name string) ([]byte, bool, error) {
		return c.Download(name)
	}, logger)

	c = New(Options{
		Address:      cfg.Server.Address,
		Username:     cfg.Client.Username,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ThrottleBps:  cfg.Throttle.RawBytes,
		Notify:       router.Handle,
	}, logger)

	watcher := NewWatcher(cfg.Client.SyncDir, cfg.Watcher.Interval, table, logger,
		func(name string, content []byte) error {
			return c.Upload(context.Background(), name, content)
		},
		func(name string) error {
			_, err := c.Delete(name)
			return err
		},
	)

	return &Engine{cfg: cfg, logger: logger, table: table, client: c, watcher: watcher}
}

// dialer builds the Dialer matching cfg.TLS, grounded on the teacher's
// TLS-aware dial helper but simplified to optional, server-cert-only TLS.
func (e *Engine) dialer() (Dialer, error) {
	if !e.cfg.TLS.Enabled() {
		var d net.Dialer
		return func(ctx context.Context, address string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", address)
		}, nil
	}

	tlsCfg, err := pki.NewClientTLSConfig(e.cfg.TLS.CACert)
	if err != nil {
		return nil, fmt.Errorf("engine: configuring TLS: %w", err)
	}
	host, _, splitErr := net.SplitHostPort(e.cfg.Server.Address)
	if splitErr == nil {
		tlsCfg.ServerName = host
	}

	tlsDialer := &tls.Dialer{Config: tlsCfg}
	return func(ctx context.Context, address string) (net.Conn, error) {
		return tlsDialer.DialContext(ctx, "tcp", address)
	}, nil
}

// Run connects, performs the initial sync, and then blocks running the
// watcher and reconnect supervisor until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	if err := os.MkdirAll(e.cfg.Client.SyncDir, 0o755); err != nil {
		return fmt.Errorf("engine: creating sync directory: %w", err)
	}

	dial, err := e.dialer()
	if err != nil {
		return err
	}

	if err := e.client.Dial(ctx, dial); err != nil {
		return fmt.Errorf("engine: initial connect: %w", err)
	}

	prev, err := e.initialSync()
	if err != nil {
		e.logger.Warn("initial sync incomplete", "error", err)
	}

	sup := NewSupervisor(e.client, dial, e.cfg.Reconnect.InitialDelay, e.cfg.Reconnect.MaxDelay, e.logger, nil)
	go sup.Run(ctx, 2*time.Second)

	e.watcher.Run(ctx, prev)
	return nil
}

// initialSync implements spec §4.8: request the server's file set, let
// the notification path download and install each one (CMD_GET_SYNC_DIR
// replies with one SYNC_NOTIFICATION per file, which the reader routes to
// the same NotificationRouter a runtime update would use), then seed the
// Watcher's snapshot from the resulting directory state so files that
// exist only locally are picked up and uploaded on the first tick.
func (e *Engine) initialSync() (map[string]time.Time, error) {
	count, err := e.client.GetSyncDir()
	if err != nil {
		return nil, err
	}

	if count > 0 {
		deadline := time.Now().Add(30 * time.Second)
		for time.Now().Before(deadline) {
			if uint32(len(e.localFiles())) >= count {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
	}

	snap, err := e.watcher.snapshot()
	if err != nil {
		return nil, err
	}
	// Keep only files the notification path installed with this exact
	// mtime; anything else is local-only and stays out of the seed.
	e.table.mu.Lock()
	for name, mtime := range snap {
		if inst, ok := e.table.mtime[name]; !ok || !inst.Equal(mtime) {
			delete(snap, name)
		}
	}
	e.table.mu.Unlock()
	return snap, nil
}

func (e *Engine) localFiles() []string {
	entries, err := os.ReadDir(e.cfg.Client.SyncDir)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	return out
}
