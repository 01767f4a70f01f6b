// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package protocol

import "errors"

// Error kinds the framing layer distinguishes. These are terminal for
// the connection except ErrTimeout, which the caller may retry.
var (
	// ErrFramingLost means a read returned fewer bytes than a frame
	// before the connection closed or failed.
	ErrFramingLost = errors.New("protocol: framing lost")

	// ErrProtocolViolation means an unexpected frame type, an
	// out-of-range length, or a DATA_PACKET with no preceding header.
	ErrProtocolViolation = errors.New("protocol: violation")

	// ErrTimeout means a read timed out; the connection remains usable.
	ErrTimeout = errors.New("protocol: read timeout")

	// ErrConnectionClosed means the peer closed the connection cleanly
	// (a zero-byte read at a frame boundary).
	ErrConnectionClosed = errors.New("protocol: connection closed")
)
