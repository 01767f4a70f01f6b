// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

// Package client implements the sync client: a single connection reader
// that routes inbound frames either to a waiting command by seqn or to
// the notification handler, plus the directory watcher and reconnect
// supervisor that drive it.
package client

import (
	"sync"

	"github.com/nishisan-dev/nsyncd/internal/protocol"
)

// pending accumulates the frames belonging to one in-flight command's
// response: the header frame followed by zero or more DATA_PACKET frames
// sharing its seqn, until TotalSize bytes of body have arrived.
type pending struct {
	header *protocol.Frame
	body   []byte
	done   chan struct{}
}

// router is the single reader's correlation table, keyed by seqn. Every map
// access goes through mu. Only the reader goroutine ever calls deliver, so
// a pending entry's header and body have exactly one writer; command
// issuers only call register, forget and wait.
type router struct {
	mu      sync.Mutex
	waiting map[uint16]*pending
}

func newRouter() *router {
	return &router{waiting: make(map[uint16]*pending)}
}

// register creates a waiter for seqn. The caller must call wait (or
// forget, on failure) exactly once afterward.
func (r *router) register(seqn uint16) *pending {
	p := &pending{done: make(chan struct{})}
	r.mu.Lock()
	r.waiting[seqn] = p
	r.mu.Unlock()
	return p
}

// forget removes a waiter without waiting on it, used when sending the
// command itself failed.
func (r *router) forget(seqn uint16) {
	r.mu.Lock()
	delete(r.waiting, seqn)
	r.mu.Unlock()
}

// deliver routes one inbound frame to its waiter. Returns false if no
// command is waiting on this seqn (a protocol violation by the server, or
// a late frame after the issuer gave up) — the caller logs and drops it.
func (r *router) deliver(f *protocol.Frame) bool {
	r.mu.Lock()
	p, ok := r.waiting[f.Seqn]
	r.mu.Unlock()
	if !ok {
		return false
	}

	if p.header == nil {
		p.header = f
		// A CMD_GET_SYNC_DIR header's TotalSize is a file count, answered by
		// SYNC_NOTIFICATION frames rather than DATA_PACKETs, so the header
		// alone completes it.
		if f.Type == protocol.CmdGetSyncDir || uint32(len(p.body)) >= f.TotalSize {
			r.complete(f.Seqn, p)
		}
		return true
	}

	p.body = append(p.body, f.Body()...)
	if uint32(len(p.body)) >= p.header.TotalSize {
		r.complete(f.Seqn, p)
	}
	return true
}

func (r *router) complete(seqn uint16, p *pending) {
	r.mu.Lock()
	delete(r.waiting, seqn)
	r.mu.Unlock()
	close(p.done)
}

// wait blocks until p's response is fully assembled.
func (p *pending) wait() (*protocol.Frame, []byte) {
	<-p.done
	return p.header, p.body
}
