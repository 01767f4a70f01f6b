// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package protocol

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

func TestSendReadFrameRoundTrip(t *testing.T) {
	f, err := NewFrame(CmdUpload, 42, 5, []byte("hello"))
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	var buf bytes.Buffer
	if err := SendFrame(&buf, f); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	if buf.Len() != FrameSize {
		t.Fatalf("wire size = %d, want %d", buf.Len(), FrameSize)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Type != CmdUpload || got.Seqn != 42 || got.TotalSize != 5 || got.Length != 5 {
		t.Fatalf("got %+v", got)
	}
	if string(got.Body()) != "hello" {
		t.Fatalf("body = %q", got.Body())
	}
}

func TestReadFrameSequencePreservesBoundaries(t *testing.T) {
	var buf bytes.Buffer
	a, _ := NewFrame(CmdLogin, 1, 0, []byte("alice"))
	b, _ := NewFrame(DataPacket, 1, 0, []byte("chunk"))
	if err := SendFrame(&buf, a); err != nil {
		t.Fatal(err)
	}
	if err := SendFrame(&buf, b); err != nil {
		t.Fatal(err)
	}

	got1, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got2, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if got1.Type != CmdLogin || string(got1.Body()) != "alice" {
		t.Fatalf("frame 1 = %+v", got1)
	}
	if got2.Type != DataPacket || string(got2.Body()) != "chunk" {
		t.Fatalf("frame 2 = %+v", got2)
	}
}

func TestReadFrameEOFAtBoundaryIsConnectionClosed(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("err = %v, want ErrConnectionClosed", err)
	}
}

func TestReadFrameShortMidFrameIsFramingLost(t *testing.T) {
	f, _ := NewFrame(CmdExit, 1, 0, nil)
	var buf bytes.Buffer
	if err := SendFrame(&buf, f); err != nil {
		t.Fatal(err)
	}

	truncated := buf.Bytes()[:HeaderSize+10]
	_, err := ReadFrame(bytes.NewReader(truncated))
	if !errors.Is(err, ErrFramingLost) {
		t.Fatalf("err = %v, want ErrFramingLost", err)
	}
}

func TestReadFrameOversizedLengthIsProtocolViolation(t *testing.T) {
	var header [HeaderSize]byte
	header[8] = 0xFF // Length low byte
	header[9] = 0xFF // Length high byte -> 65535 > PayloadSize
	_, err := ReadFrame(bytes.NewReader(header[:]))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("err = %v, want ErrProtocolViolation", err)
	}
}

func TestReadFrameTimeoutIsRecoverable(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	if err := server.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	_, err := ReadFrame(server)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	// Connection is still usable after a timeout.
	if err := server.SetReadDeadline(time.Time{}); err != nil {
		t.Fatal(err)
	}
	go func() {
		f, _ := NewFrame(CmdExit, 1, 0, nil)
		_ = SendFrame(client, f)
	}()

	got, err := ReadFrame(server)
	if err != nil {
		t.Fatalf("ReadFrame after timeout: %v", err)
	}
	if got.Type != CmdExit {
		t.Fatalf("got type %d", got.Type)
	}
}

func TestNewFrameRejectsOversizedBody(t *testing.T) {
	_, err := NewFrame(CmdUpload, 1, 0, make([]byte, PayloadSize+1))
	if err == nil {
		t.Fatal("expected error for oversized body")
	}
}
