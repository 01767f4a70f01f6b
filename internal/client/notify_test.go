// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package client

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestNotificationRouter(t *testing.T, dir string, table *mtimeTable, content []byte, found bool, downloadErr error) *NotificationRouter {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNotificationRouter(dir, table, func(name string) ([]byte, bool, error) {
		return content, found, downloadErr
	}, logger)
}

// These exercise handleUpdate/handleDelete directly rather than through
// Handle: Handle dispatches them onto their own goroutine (see
// TestHandleDispatchesOffTheCallingGoroutine below), so asserting their
// effects right after calling Handle would race.

func TestNotificationHandleUpdateWritesFileAndRecordsMtime(t *testing.T) {
	dir := t.TempDir()
	table := newMtimeTable()
	n := newTestNotificationRouter(t, dir, table, []byte("payload"), true, nil)

	n.handleUpdate("a.txt")

	got, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("content = %q", got)
	}
	if _, ok := table.mtime["a.txt"]; !ok {
		t.Fatal("expected mtime table to record a.txt")
	}
}

func TestNotificationHandleUpdateMissingOnServerIsNoop(t *testing.T) {
	dir := t.TempDir()
	table := newMtimeTable()
	n := newTestNotificationRouter(t, dir, table, nil, false, nil)

	n.handleUpdate("missing.txt")

	if _, err := os.Stat(filepath.Join(dir, "missing.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected no file to be written, stat err = %v", err)
	}
}

func TestNotificationHandleDeleteRemovesFileAndForgetsMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	table := newMtimeTable()
	table.mtime["a.txt"] = info.ModTime()
	n := newTestNotificationRouter(t, dir, table, nil, false, nil)

	n.handleDelete("a.txt")

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}
	if _, ok := table.mtime["a.txt"]; ok {
		t.Fatal("expected a.txt removed from mtime table")
	}
}

func TestNotificationHandleDeleteOfAlreadyAbsentFileIsNoop(t *testing.T) {
	dir := t.TempDir()
	table := newMtimeTable()
	n := newTestNotificationRouter(t, dir, table, nil, false, nil)

	n.handleDelete("never-existed.txt")
}

// TestHandleDispatchesOffTheCallingGoroutine proves Handle does not block
// its caller on the download: if it ran handleUpdate inline, this call
// would hang forever waiting on release, since nothing else can close it.
func TestHandleDispatchesOffTheCallingGoroutine(t *testing.T) {
	dir := t.TempDir()
	table := newMtimeTable()

	release := make(chan struct{})
	n := NewNotificationRouter(dir, table, func(name string) ([]byte, bool, error) {
		<-release
		return []byte("payload"), true, nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	returned := make(chan struct{})
	go func() {
		n.Handle("U", "a.txt", 7)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Handle blocked on the download instead of dispatching it to a goroutine")
	}

	close(release)
}
