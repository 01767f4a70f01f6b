// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package client

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	nconfig "github.com/nishisan-dev/nsyncd/internal/config"
	"github.com/nishisan-dev/nsyncd/internal/server"
)

func startTestServer(t *testing.T) string {
	t.Helper()

	cfg := &nconfig.ServerConfig{}
	cfg.Storage.RootDir = t.TempDir()
	cfg.Stats.Interval = time.Hour

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(cfg, logger)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go srv.Serve(ctx, ln)

	return ln.Addr().String()
}

func plainDial(ctx context.Context, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", address)
}

func newTestClient(t *testing.T, address, username string) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(Options{
		Address:      address,
		Username:     username,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}, logger)
	if err := c.Dial(context.Background(), plainDial); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientUploadDownloadRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	c := newTestClient(t, addr, "alice")

	if err := c.Upload(context.Background(), "a.txt", []byte("hello")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	content, found, err := c.Download("a.txt")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !found {
		t.Fatal("expected file to be found")
	}
	if string(content) != "hello" {
		t.Fatalf("content = %q", content)
	}
}

func TestClientDownloadMissingReturnsNotFound(t *testing.T) {
	addr := startTestServer(t)
	c := newTestClient(t, addr, "bob")

	_, found, err := c.Download("missing.txt")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if found {
		t.Fatal("expected not found")
	}
}

func TestClientDeleteThenListIsEmpty(t *testing.T) {
	addr := startTestServer(t)
	c := newTestClient(t, addr, "carol")

	if err := c.Upload(context.Background(), "f.txt", []byte("x")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	existed, err := c.Delete("f.txt")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !existed {
		t.Fatal("expected delete to report the file existed")
	}

	files, err := c.ListServer()
	if err != nil {
		t.Fatalf("ListServer: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected empty list, got %+v", files)
	}
}

func TestClientListServerReflectsUploads(t *testing.T) {
	addr := startTestServer(t)
	c := newTestClient(t, addr, "dave")

	if err := c.Upload(context.Background(), "one.txt", []byte("12345")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	files, err := c.ListServer()
	if err != nil {
		t.Fatalf("ListServer: %v", err)
	}
	if len(files) != 1 || files[0].Name != "one.txt" || files[0].Size != 5 {
		t.Fatalf("unexpected list: %+v", files)
	}
}
