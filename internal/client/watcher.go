// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package client

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// mtimeTable is the Watcher's snapshot of the sync directory, shared with
// the Notification Handler so a server-initiated write doesn't bounce back
// as a client-initiated upload on the Watcher's next tick — per spec §4.7's
// race-avoidance rule. Every entry installed by the notification handler is
// written before the shared mutex is released.
type mtimeTable struct {
	mu    sync.Mutex
	mtime map[string]time.Time
}

func newMtimeTable() *mtimeTable {
	return &mtimeTable{mtime: make(map[string]time.Time)}
}

// observe records filename's mtime under the table's mutex without
// emitting any sync action.
func (t *mtimeTable) observe(filename string, mtime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mtime[filename] = mtime
}

// forget removes filename from the table under its mutex.
func (t *mtimeTable) forget(filename string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.mtime, filename)
}

// Watcher polls syncDir once per tick interval, diffs the directory
// against its previous snapshot, and issues upload/delete operations for
// whatever changed — the client-initiated half of spec §4.7.
type Watcher struct {
	syncDir  string
	interval time.Duration
	table    *mtimeTable
	logger   *slog.Logger

	upload func(filename string, content []byte) error
	delete func(filename string) error
}

// NewWatcher builds a Watcher over syncDir. upload and delete are the
// engine's command issuers, injected so Watcher has no direct dependency
// on *Client.
func NewWatcher(syncDir string, interval time.Duration, table *mtimeTable, logger *slog.Logger, upload func(string, []byte) error, delete func(string) error) *Watcher {
	return &Watcher{
		syncDir:  syncDir,
		interval: interval,
		table:    table,
		logger:   logger,
		upload:   upload,
		delete:   delete,
	}
}

// Run ticks until ctx is canceled. prev starts as whatever the engine's
// initialSync produced so the first tick after initial sync does not
// re-upload files that arrived via the initial sync's downloads.
func (w *Watcher) Run(ctx context.Context, prev map[string]time.Time) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev = w.tick(prev)
		}
	}
}

// tick never holds table.mu across w.upload/w.delete: those issue blocking
// commands that can only complete once the reader goroutine delivers their
// response, and the reader itself needs table.mu (via the notification
// handler) to land a server-initiated write. Holding the lock across the
// network call would deadlock the two against each other. Instead it reads
// the table once up front, performs all network I/O unlocked, and commits
// the resulting mtime changes in one final locked pass.
func (w *Watcher) tick(prev map[string]time.Time) map[string]time.Time {
	current, err := w.snapshot()
	if err != nil {
		w.logger.Warn("watcher scan failed", "dir", w.syncDir, "error", err)
		return prev
	}

	w.table.mu.Lock()
	installed := make(map[string]time.Time, len(w.table.mtime))
	for name, mtime := range w.table.mtime {
		installed[name] = mtime
	}
	w.table.mu.Unlock()

	uploaded := make(map[string]time.Time)
	for name, mtime := range current {
		known, existed := prev[name]
		if existed && known.Equal(mtime) {
			continue
		}

		// The notification handler already installed exactly this mtime:
		// this is a server-initiated change landing on disk, not a local
		// edit, so it must not be echoed back as an upload.
		if inst, ok := installed[name]; ok && inst.Equal(mtime) {
			continue
		}

		content, err := os.ReadFile(filepath.Join(w.syncDir, name))
		if err != nil {
			w.logger.Warn("watcher read failed", "file", name, "error", err)
			continue
		}
		if err := w.upload(name, content); err != nil {
			w.logger.Warn("watcher upload failed", "file", name, "error", err)
			continue
		}
		uploaded[name] = mtime
	}

	var deleted []string
	for name := range prev {
		if _, ok := current[name]; ok {
			continue
		}
		if err := w.delete(name); err != nil {
			w.logger.Warn("watcher delete failed", "file", name, "error", err)
			continue
		}
		deleted = append(deleted, name)
	}

	w.table.mu.Lock()
	for name, mtime := range uploaded {
		w.table.mtime[name] = mtime
	}
	for _, name := range deleted {
		delete(w.table.mtime, name)
	}
	w.table.mu.Unlock()

	return current
}

func (w *Watcher) snapshot() (map[string]time.Time, error) {
	entries, err := os.ReadDir(w.syncDir)
	if err != nil {
		return nil, err
	}

	out := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[e.Name()] = info.ModTime()
	}
	return out, nil
}
