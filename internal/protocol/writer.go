// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SendFrame writes exactly one frame to w, retrying short writes until
// the frame is fully written or the connection is broken. The header is
// serialized explicitly in little-endian rather than via raw struct
// layout, so the wire format does not depend on the sender's endianness
// or compiler struct packing.
func SendFrame(w io.Writer, f *Frame) error {
	var buf [FrameSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], f.Type)
	binary.LittleEndian.PutUint16(buf[2:4], f.Seqn)
	binary.LittleEndian.PutUint32(buf[4:8], f.TotalSize)
	binary.LittleEndian.PutUint16(buf[8:10], f.Length)
	copy(buf[HeaderSize:], f.Payload[:])

	if err := writeFull(w, buf[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrFramingLost, err)
	}
	return nil
}

// writeFull retries partial writes until all of p is written or Write
// returns an error. io.Writer implementations over a TCP connection
// normally consume the whole buffer or fail, but nothing in the io.Writer
// contract guarantees that, so frame writes must not assume it.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
