// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// ReadFrame reads exactly one frame from r or fails. A zero-byte read at
// the start of a frame means the peer closed cleanly (ErrConnectionClosed);
// any other short read mid-frame is framing loss (ErrFramingLost), since a
// frame is never split or merged across calls. A deadline expiring on r
// (when r is a net.Conn with a read deadline set by the caller) surfaces
// as ErrTimeout and leaves the connection usable for a retry.
func ReadFrame(r io.Reader) (*Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, wrapReadErr(err, true)
	}

	f := &Frame{
		Type:      binary.LittleEndian.Uint16(header[0:2]),
		Seqn:      binary.LittleEndian.Uint16(header[2:4]),
		TotalSize: binary.LittleEndian.Uint32(header[4:8]),
		Length:    binary.LittleEndian.Uint16(header[8:10]),
	}

	if int(f.Length) > PayloadSize {
		return nil, fmt.Errorf("%w: length %d exceeds payload capacity %d", ErrProtocolViolation, f.Length, PayloadSize)
	}

	if _, err := io.ReadFull(r, f.Payload[:]); err != nil {
		return nil, wrapReadErr(err, false)
	}

	return f, nil
}

// wrapReadErr classifies a read failure per the propagation policy in
// the error handling design: a timeout is recoverable, a clean close at
// a frame boundary is ErrConnectionClosed, and any other short/failed
// read is ErrFramingLost.
func wrapReadErr(err error, atFrameBoundary bool) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	if atFrameBoundary && errors.Is(err, io.EOF) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("%w: %v", ErrFramingLost, err)
}
