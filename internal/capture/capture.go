// Package capture defines the durable capture contract for received HL7
// messages.
//
// Every message the receiver takes off the wire is written to a capture
// sink, valid or not, exactly once. Capture is an audit trail rather than a
// validity gate: a write failure is logged by the session and never
// interrupts it, and a failed write must not corrupt earlier entries.
//
// # Implementations
//
// The filesystem sub-package writes one file per message under a base
// directory; the mongodb sub-package stores documents in a collection.
// Both must tolerate concurrent writers: each entry is keyed by its own
// collision-resistant identity, not a shared counter.
package capture

import (
	"context"
	"time"
)

// Entry is one received message to be captured.
type Entry struct {
	// Raw is the message text exactly as received inside the frame.
	Raw string
	// ReceivedAt is the generation timestamp; sinks derive their naming
	// from it, so it must carry sub-second resolution.
	ReceivedAt time.Time
	// RemoteAddr identifies the sending peer, for diagnostics.
	RemoteAddr string
	// Valid records the validation outcome the message received.
	Valid bool
}

// Sink durably records received messages. Store must not return until the
// entry is durable, or must report failure without corrupting prior entries.
// Implementations must be safe for concurrent use.
type Sink interface {
	Store(ctx context.Context, entry Entry) error
	Close(ctx context.Context) error
}
