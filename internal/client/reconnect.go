// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package client

import (
	"context"
	"log/slog"
	"math"
	"net"
	"time"
)

// Dialer opens a new connection to address, used both for the initial
// Dial and every reconnect attempt. A plain net.Dialer.DialContext for
// unencrypted transport, or a tls.Dialer's DialContext when TLS is
// configured.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

// Supervisor watches a Client's Alive flag and redials with capped
// exponential backoff whenever the connection is observed down, per spec
// §4.9: any layer may mark the connection dead; reconnect resends
// CMD_LOGIN and restarts the reader.
type Supervisor struct {
	client       *Client
	dial         Dialer
	initialDelay time.Duration
	maxDelay     time.Duration
	logger       *slog.Logger

	// onReconnect runs after a successful redial, so the engine can
	// re-arm anything that depended on the old connection (e.g. restart
	// commands that were in flight are simply left failed, per spec).
	onReconnect func()
}

// NewSupervisor builds a Supervisor over an already-dialed client.
func NewSupervisor(c *Client, dial Dialer, initialDelay, maxDelay time.Duration, logger *slog.Logger, onReconnect func()) *Supervisor {
	return &Supervisor{
		client:       c,
		dial:         dial,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		logger:       logger,
		onReconnect:  onReconnect,
	}
}

// Run polls Alive every pollInterval and redials on failure until ctx is
// canceled.
func (s *Supervisor) Run(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.client.Alive() {
				continue
			}
			s.reconnectLoop(ctx)
		}
	}
}

func (s *Supervisor) reconnectLoop(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.client.Dial(ctx, s.dial); err != nil {
			delay := calculateBackoff(attempt, s.initialDelay, s.maxDelay)
			s.logger.Warn("reconnect attempt failed", "attempt", attempt, "retry_in", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		s.logger.Info("reconnected")
		if s.onReconnect != nil {
			s.onReconnect()
		}
		return
	}
}

// calculateBackoff computes a capped exponential backoff delay for the
// given attempt (1-indexed).
func calculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	delay := time.Duration(float64(initialDelay) * math.Pow(2, float64(attempt-1)))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
