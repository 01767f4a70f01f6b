// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package protocol

import (
	"crypto/tls"
	"net"
)

// SetNoDelay disables Nagle's algorithm on conn, per spec §4.1: every frame
// is a small, latency-sensitive write, and batching them behind Nagle's
// 40ms-ish delay defeats that. A no-op for anything that isn't backed by a
// *net.TCPConn (e.g. a net.Pipe used in tests).
func SetNoDelay(conn net.Conn) {
	if tc, ok := underlyingTCPConn(conn); ok {
		tc.SetNoDelay(true)
	}
}

func underlyingTCPConn(conn net.Conn) (*net.TCPConn, bool) {
	switch c := conn.(type) {
	case *net.TCPConn:
		return c, true
	case *tls.Conn:
		tc, ok := c.NetConn().(*net.TCPConn)
		return tc, ok
	default:
		return nil, false
	}
}
