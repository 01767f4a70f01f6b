// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

// Package registry implements the server-side session registry: the
// mapping of username to active sessions, capped at two per spec §4.3,
// and the notifier that fans change events out to sibling sessions.
package registry

import "sync"

// Session is the minimal interface the registry and notifier need from a
// live connection. The server package's session type implements it; the
// registry itself holds no knowledge of sockets or commands.
type Session interface {
	// ID uniquely identifies this session for registry bookkeeping.
	ID() string
	// Notify delivers a SYNC_NOTIFICATION for the given change. kind is
	// "U" (update) or "D" (delete). Implementations must not block the
	// caller for long and must not be called while any registry mutex
	// is held.
	Notify(kind, filename string)
}

// Registry maps username to its ordered list of active sessions. At most
// MaxSessionsPerUser sessions are admitted concurrently for one user.
type Registry struct {
	mu       sync.Mutex
	sessions map[string][]Session
}

// MaxSessionsPerUser is the admission cap from spec §3: at most two
// concurrent sessions per user. This is not configurable — relaxing it
// would violate the session-cap invariant the client reconnect and
// notification-fan-out logic both depend on.
const MaxSessionsPerUser = 2

// New creates an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string][]Session)}
}

// Register admits sess under username if the cap is not already reached.
// Returns false if the cap was reached and the session was not admitted.
func (r *Registry) Register(username string, sess Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.sessions[username]
	if len(existing) >= MaxSessionsPerUser {
		return false
	}
	r.sessions[username] = append(existing, sess)
	return true
}

// Unregister removes sess from username's session list. No-op if absent.
func (r *Registry) Unregister(username string, sess Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.sessions[username]
	for i, s := range list {
		if s.ID() == sess.ID() {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.sessions, username)
	} else {
		r.sessions[username] = list
	}
}

// Siblings returns every other session registered under username besides
// origin. The returned slice is a snapshot copy safe to use after the
// registry mutex is released.
func (r *Registry) Siblings(username string, origin Session) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.sessions[username]
	out := make([]Session, 0, len(list))
	for _, s := range list {
		if s.ID() != origin.ID() {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of active sessions for username, for tests
// and the stats reporter.
func (r *Registry) Count(username string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[username])
}

// Snapshot returns the number of distinct users with at least one active
// session and the total session count, for the stats reporter.
func (r *Registry) Snapshot() (users, sessions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users = len(r.sessions)
	for _, list := range r.sessions {
		sessions += len(list)
	}
	return users, sessions
}
