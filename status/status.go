// Package status is the event surface between the polling/auth core and
// its external collaborators (tray UI, notifications). The core emits;
// collaborators consume. Nothing flows back in.
package status

import (
	"time"

	"github.com/claudepulse/pulse/usage"
)

// Kind classifies an event.
type Kind string

const (
	// KindAuthorized fires when a login or re-login completes.
	KindAuthorized Kind = "authorized"

	// KindUnauthenticated fires when no credential exists and refresh is
	// impossible. Polling is suspended until re-authorization.
	KindUnauthenticated Kind = "unauthenticated"

	// KindUsageUpdated carries a fresh snapshot.
	KindUsageUpdated Kind = "usage_updated"

	// KindDegraded signals transient server or network trouble; polling
	// continues with backoff.
	KindDegraded Kind = "degraded"

	// KindRateLimited signals the usage endpoint asked us to slow down.
	// Not an error: a scheduling signal.
	KindRateLimited Kind = "rate_limited"
)

// Event is a single status change. Snapshot is set only for
// KindUsageUpdated; Reason only for KindDegraded.
type Event struct {
	Kind     Kind
	Snapshot *usage.Snapshot
	Reason   string
	At       time.Time
}

// Sink receives events. A nil Sink drops them.
type Sink func(Event)

// Emit delivers an event, tolerating a nil sink.
func (s Sink) Emit(e Event) {
	if s == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s(e)
}
