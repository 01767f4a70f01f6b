// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

// Package server implements the sync server: an accept loop handing each
// connection to a per-session worker that speaks the framed protocol in
// internal/protocol against the shared store and registry.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/nsyncd/internal/config"
	"github.com/nishisan-dev/nsyncd/internal/pki"
	"github.com/nishisan-dev/nsyncd/internal/protocol"
	"github.com/nishisan-dev/nsyncd/internal/registry"
	"github.com/nishisan-dev/nsyncd/internal/store"
)

// Server owns the shared file store, session registry, and connection
// metrics for one running instance.
type Server struct {
	cfg      *config.ServerConfig
	logger   *slog.Logger
	store    *store.Store
	registry *registry.Registry

	trafficIn atomic.Int64
	diskWrite atomic.Int64
}

// New builds a Server backed by a file store rooted at cfg.Storage.RootDir.
func New(cfg *config.ServerConfig, logger *slog.Logger) (*Server, error) {
	st, err := store.New(cfg.Storage.RootDir, cfg.Storage.MinFreeBytes)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: registry.New(),
	}, nil
}

// Run listens on cfg.Server.Listen (optionally over TLS) and blocks until
// ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	s.logger.Info("server listening", "address", s.cfg.Server.Listen, "tls", s.cfg.TLS.Enabled())
	return s.serve(ctx, ln)
}

func (s *Server) listen() (net.Listener, error) {
	if !s.cfg.TLS.Enabled() {
		ln, err := net.Listen("tcp", s.cfg.Server.Listen)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
		}
		return ln, nil
	}

	tlsCfg, err := pki.NewServerTLSConfig(s.cfg.TLS.ServerCert, s.cfg.TLS.ServerKey)
	if err != nil {
		return nil, fmt.Errorf("configuring TLS: %w", err)
	}
	ln, err := tls.Listen("tcp", s.cfg.Server.Listen, tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}
	return ln, nil
}

// Serve runs the accept loop against an already-open listener, exported so
// callers (including other packages' tests) can supply a loopback listener
// bound to an OS-assigned port without going through Run's config-driven
// listen().
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return s.serve(ctx, ln)
}

// serve runs the accept loop against an already-open listener. Exposed
// separately from Run so tests can supply a net.Pipe-backed or
// loopback listener without touching TLS/config wiring.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	go s.reportStats(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down server")
		ln.Close()
	}()

	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.logger.Info("server shutdown complete")
				return nil
			default:
				consecutiveErrors++
				s.logger.Error("accepting connection", "error", err, "consecutive_errors", consecutiveErrors)
				delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
				if delay > 5*time.Second {
					delay = 5 * time.Second
				}
				time.Sleep(delay)
				continue
			}
		}

		consecutiveErrors = 0
		protocol.SetNoDelay(conn)
		w := newWorker(conn, workerConfig{
			store:        s.store,
			registry:     s.registry,
			readTimeout:  90 * time.Second,
			writeTimeout: 10 * time.Second,
			trafficIn:    &s.trafficIn,
			diskWrite:    &s.diskWrite,
		}, s.logger)
		go w.run(ctx)
	}
}

// reportStats logs a periodic line of aggregate activity, grounded on the
// teacher's stats reporter but trimmed to the counters this protocol has.
func (s *Server) reportStats(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Stats.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			users, sessions := s.registry.Snapshot()
			s.logger.Info("stats",
				"users", users,
				"sessions", sessions,
				"traffic_in_bytes", s.trafficIn.Load(),
				"disk_write_bytes", s.diskWrite.Load(),
			)
		}
	}
}
