// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/nsyncd/internal/protocol"
)

// session wraps one accepted connection. It implements registry.Session so
// the registry can fan SYNC_NOTIFICATION frames out to it without knowing
// anything about sockets or commands.
//
// sendMu serializes every frame write — the response to a command and any
// unsolicited notification interleaved between commands must never tear
// each other's bytes, per spec §4.4's ordering guarantee.
type session struct {
	id   string
	conn net.Conn

	sendMu sync.Mutex

	username string

	connectedAt  time.Time
	lastActivity atomic.Int64 // UnixNano of the last successful read or write

	logger logFn
}

// logFn lets session log without importing slog directly into this file's
// signature noise; server.go supplies the real logger.
type logFn func(msg string, args ...any)

func newSession(conn net.Conn, logger logFn) *session {
	return &session{
		id:          conn.RemoteAddr().String(),
		conn:        conn,
		connectedAt: time.Now(),
		logger:      logger,
	}
}

// ID implements registry.Session.
func (s *session) ID() string { return s.id }

// Notify implements registry.Session. It is best-effort: a short write
// deadline bounds how long a slow sibling can stall the sender, and any
// failure is logged rather than propagated — per spec §4.3, a failed send
// leaves the sibling to discover its own disconnect.
func (s *session) Notify(kind, filename string) {
	body := fmt.Sprintf("%s:%s", kind, filename)
	frame, err := protocol.NewFrame(protocol.SyncNotification, 0, uint32(len(body)), []byte(body))
	if err != nil {
		s.logger("dropping oversized notification", "user", s.username, "file", filename, "error", err)
		return
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	defer s.conn.SetWriteDeadline(time.Time{})

	if err := protocol.SendFrame(s.conn, frame); err != nil {
		s.logger("notify failed", "user", s.username, "to", s.id, "error", err)
	}
}

// send writes a frame under the session's send mutex, guaranteeing it
// never interleaves with a concurrent Notify or another send call.
func (s *session) send(f *protocol.Frame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return protocol.SendFrame(s.conn, f)
}

func (s *session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}
