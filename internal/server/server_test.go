// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package server

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nishisan-dev/nsyncd/internal/config"
	"github.com/nishisan-dev/nsyncd/internal/protocol"
)

func testServer(t *testing.T) (net.Listener, func()) {
	t.Helper()

	cfg := &config.ServerConfig{}
	cfg.Storage.RootDir = t.TempDir()
	cfg.Stats.Interval = time.Hour

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	srv, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.serve(ctx, ln)
		close(done)
	}()

	return ln, func() {
		cancel()
		<-done
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func dial(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func login(t *testing.T, conn net.Conn, username string, seqn uint16) {
	t.Helper()
	frame, err := protocol.NewFrame(protocol.CmdLogin, seqn, 0, []byte(username))
	if err != nil {
		t.Fatal(err)
	}
	if err := protocol.SendFrame(conn, frame); err != nil {
		t.Fatalf("sending login: %v", err)
	}
	reply, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("reading login reply: %v", err)
	}
	if reply.Type != protocol.CmdLogin {
		t.Fatalf("login rejected: %s", reply.String())
	}
}

func TestLoginUploadListRoundTrip(t *testing.T) {
	ln, stop := testServer(t)
	defer stop()

	conn := dial(t, ln)
	defer conn.Close()
	login(t, conn, "alice", 1)

	content := []byte("hello")
	upload, _ := protocol.NewFrame(protocol.CmdUpload, 2, uint32(len(content)), []byte("a.txt"))
	if err := protocol.SendFrame(conn, upload); err != nil {
		t.Fatal(err)
	}
	data, _ := protocol.NewFrame(protocol.DataPacket, 2, 0, content)
	if err := protocol.SendFrame(conn, data); err != nil {
		t.Fatal(err)
	}
	reply, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("upload reply: %v", err)
	}
	if string(reply.Body()) != protocol.StatusOK {
		t.Fatalf("upload status = %q", reply.Body())
	}

	list, _ := protocol.NewFrame(protocol.CmdListServer, 3, 0, nil)
	if err := protocol.SendFrame(conn, list); err != nil {
		t.Fatal(err)
	}
	header, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("list reply: %v", err)
	}
	if header.Type != protocol.CmdListServer {
		t.Fatalf("unexpected reply type %d", header.Type)
	}
	body := string(header.Body())
	if !strings.Contains(body, "a.txt,5,") {
		t.Fatalf("list body = %q", body)
	}
}

func TestDownloadMissingFileIsNotFound(t *testing.T) {
	ln, stop := testServer(t)
	defer stop()

	conn := dial(t, ln)
	defer conn.Close()
	login(t, conn, "bob", 1)

	download, _ := protocol.NewFrame(protocol.CmdDownload, 2, 0, []byte("nope.txt"))
	if err := protocol.SendFrame(conn, download); err != nil {
		t.Fatal(err)
	}
	reply, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("download reply: %v", err)
	}
	if string(reply.Body()) != protocol.StatusNotFound {
		t.Fatalf("status = %q, want NOT_FOUND", reply.Body())
	}
}

func TestThirdConcurrentLoginIsRejected(t *testing.T) {
	ln, stop := testServer(t)
	defer stop()

	c1 := dial(t, ln)
	defer c1.Close()
	login(t, c1, "carol", 1)

	c2 := dial(t, ln)
	defer c2.Close()
	login(t, c2, "carol", 1)

	c3 := dial(t, ln)
	defer c3.Close()

	frame, _ := protocol.NewFrame(protocol.CmdLogin, 1, 0, []byte("carol"))
	if err := protocol.SendFrame(c3, frame); err != nil {
		t.Fatal(err)
	}
	reply, err := protocol.ReadFrame(c3)
	if err != nil {
		t.Fatalf("reading reject reply: %v", err)
	}
	if reply.Type != protocol.CmdExit {
		t.Fatalf("expected CMD_EXIT rejection, got type %d", reply.Type)
	}
	if len(reply.Body()) == 0 {
		t.Fatal("expected a non-empty rejection reason")
	}
}

func TestDeleteNotifiesSiblingSession(t *testing.T) {
	ln, stop := testServer(t)
	defer stop()

	c1 := dial(t, ln)
	defer c1.Close()
	login(t, c1, "dana", 1)

	c2 := dial(t, ln)
	defer c2.Close()
	login(t, c2, "dana", 1)

	content := []byte("x")
	upload, _ := protocol.NewFrame(protocol.CmdUpload, 2, uint32(len(content)), []byte("f.txt"))
	protocol.SendFrame(c1, upload)
	data, _ := protocol.NewFrame(protocol.DataPacket, 2, 0, content)
	protocol.SendFrame(c1, data)
	if _, err := protocol.ReadFrame(c1); err != nil {
		t.Fatalf("upload reply: %v", err)
	}

	// The upload itself notifies the sibling first; consume that frame.
	c2.SetReadDeadline(time.Now().Add(2 * time.Second))
	upNotif, err := protocol.ReadFrame(c2)
	if err != nil {
		t.Fatalf("expected sibling upload notification: %v", err)
	}
	if upNotif.Type != protocol.SyncNotification || string(upNotif.Body()) != "U:f.txt" {
		t.Fatalf("unexpected upload notification: %s body=%q", upNotif.String(), upNotif.Body())
	}

	del, _ := protocol.NewFrame(protocol.CmdDelete, 3, 0, []byte("f.txt"))
	protocol.SendFrame(c1, del)
	if _, err := protocol.ReadFrame(c1); err != nil {
		t.Fatalf("delete reply: %v", err)
	}

	c2.SetReadDeadline(time.Now().Add(2 * time.Second))
	notif, err := protocol.ReadFrame(c2)
	if err != nil {
		t.Fatalf("expected sibling notification: %v", err)
	}
	if notif.Type != protocol.SyncNotification || string(notif.Body()) != "D:f.txt" {
		t.Fatalf("unexpected notification: %s body=%q", notif.String(), notif.Body())
	}
}
