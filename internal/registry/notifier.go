// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package registry

// Change event kinds, matching the "U:"/"D:" notification payload form
// from spec §4.6 — the prefixed form is authoritative; no legacy
// seqn==1-means-delete form is supported.
const (
	KindUpdate = "U"
	KindDelete = "D"
)

// Notify computes the siblings of origin within username's sessions and
// delivers a SYNC_NOTIFICATION to each. It must be called with no
// registry mutex held by the caller; Registry.Siblings already takes and
// releases the mutex internally, and each Session.Notify is expected to
// be non-blocking (or best-effort with a short timeout) so one slow
// sibling cannot stall the origin's command.
func Notify(reg *Registry, username string, origin Session, kind, filename string) {
	for _, sibling := range reg.Siblings(username, origin) {
		sibling.Notify(kind, filename)
	}
}
