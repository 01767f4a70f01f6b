// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

// Package protocol implements the binary frame protocol used between
// nsyncd clients and the sync server over a TCP byte stream.
package protocol

import "fmt"

// Frame type values, as carried on the wire in the 16-bit Type field.
const (
	CmdLogin         uint16 = 1
	CmdUpload        uint16 = 2
	CmdDownload      uint16 = 3
	CmdDelete        uint16 = 4
	CmdListServer    uint16 = 5
	CmdListClient    uint16 = 6 // local-only, never sent on the wire
	CmdGetSyncDir    uint16 = 7
	DataPacket       uint16 = 8
	SyncNotification uint16 = 9
	CmdExit          uint16 = 10
)

// PayloadSize is the fixed payload capacity of every frame on the wire.
const PayloadSize = 1024

// HeaderSize is the encoded size of the fixed frame header: Type(2) +
// Seqn(2) + TotalSize(4) + Length(2).
const HeaderSize = 10

// FrameSize is the exact number of bytes every frame occupies on the wire.
const FrameSize = HeaderSize + PayloadSize

// Response payload strings carried in the Payload of a response frame.
const (
	StatusOK       = "OK"
	StatusError    = "ERROR"
	StatusNotFound = "NOT_FOUND"
)

// Frame is the unit of transport. Every field is little-endian on the
// wire; Payload is always exactly PayloadSize bytes on the wire, with
// only the first Length bytes meaningful.
type Frame struct {
	Type      uint16
	Seqn      uint16
	TotalSize uint32
	Length    uint16
	Payload   [PayloadSize]byte
}

// NewFrame builds a Frame from a type, sequence number, and body. body
// must fit within PayloadSize; totalSize is stored verbatim (callers use
// it for byte counts, file counts, or list sizes depending on frame type).
func NewFrame(typ, seqn uint16, totalSize uint32, body []byte) (*Frame, error) {
	if len(body) > PayloadSize {
		return nil, fmt.Errorf("protocol: payload of %d bytes exceeds frame capacity %d", len(body), PayloadSize)
	}
	f := &Frame{
		Type:      typ,
		Seqn:      seqn,
		TotalSize: totalSize,
		Length:    uint16(len(body)),
	}
	copy(f.Payload[:], body)
	return f, nil
}

// Body returns the valid bytes of the payload, bounded by Length.
func (f *Frame) Body() []byte {
	n := f.Length
	if int(n) > PayloadSize {
		n = PayloadSize
	}
	return f.Payload[:n]
}

// String renders a short diagnostic form, used in logs — never relied on
// for correlation since logs are not wire data.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{type=%d seqn=%d total=%d len=%d}", f.Type, f.Seqn, f.TotalSize, f.Length)
}
