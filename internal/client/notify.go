// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package client

import (
	"log/slog"
	"os"
	"path/filepath"
)

// NotificationRouter applies server-initiated SYNC_NOTIFICATION events to
// the local sync directory, per spec §4.6. It is the client.New caller's
// Notify callback.
type NotificationRouter struct {
	syncDir  string
	table    *mtimeTable
	download func(filename string) ([]byte, bool, error)
	logger   *slog.Logger
}

// NewNotificationRouter builds a router writing into syncDir. download is
// the engine's Client.Download, injected so this type has no direct
// dependency on *Client.
func NewNotificationRouter(syncDir string, table *mtimeTable, download func(string) ([]byte, bool, error), logger *slog.Logger) *NotificationRouter {
	return &NotificationRouter{syncDir: syncDir, table: table, download: download, logger: logger}
}

// Handle processes one notification. It is invoked on the client's single
// reader goroutine, so the actual download/delete — each a command that
// blocks waiting for that same reader to deliver its response — must run on
// its own goroutine rather than inline; otherwise the reader deadlocks
// against itself on every notification. The mtime table's mutex still
// serializes the eventual write against the Watcher's own mutation of the
// same table, so a notification-driven write and a watcher tick can never
// race on the same filename.
func (n *NotificationRouter) Handle(kind, filename string, size uint32) {
	switch kind {
	case "U":
		go n.handleUpdate(filename)
	case "D":
		go n.handleDelete(filename)
	default:
		n.logger.Warn("unknown notification kind", "kind", kind, "file", filename)
	}
}

func (n *NotificationRouter) handleUpdate(filename string) {
	content, found, err := n.download(filename)
	if err != nil {
		n.logger.Warn("notification download failed", "file", filename, "error", err)
		return
	}
	if !found {
		n.logger.Warn("notification referenced a file no longer on the server", "file", filename)
		return
	}

	n.table.mu.Lock()
	defer n.table.mu.Unlock()

	if err := writeAtomic(n.syncDir, filename, content); err != nil {
		n.logger.Warn("notification write failed", "file", filename, "error", err)
		return
	}

	info, err := os.Stat(filepath.Join(n.syncDir, filename))
	if err != nil {
		n.logger.Warn("notification stat after write failed", "file", filename, "error", err)
		return
	}
	n.table.mtime[filename] = info.ModTime()
}

func (n *NotificationRouter) handleDelete(filename string) {
	n.table.mu.Lock()
	defer n.table.mu.Unlock()

	path := filepath.Join(n.syncDir, filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		n.logger.Warn("notification delete failed", "file", filename, "error", err)
		return
	}
	delete(n.table.mtime, filename)
}

// writeAtomic writes content to dir/name via a temp file and rename, the
// client-side counterpart to the server store's atomic write.
func writeAtomic(dir, name string, content []byte) error {
	tmp, err := os.CreateTemp(dir, ".sync-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
