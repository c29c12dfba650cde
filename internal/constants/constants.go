// Package constants holds default tunables for the binder dispatcher.
package constants

// Default configuration constants
const (
	// DefaultMaxThreads is the default per-process worker budget (num_loopers + pending_loopers).
	DefaultMaxThreads = 15

	// MaxTransactionSize is the largest data payload accepted in a single transaction.
	MaxTransactionSize = 4000

	// AutoAssignProcessID is -1. No code path reads it; process ids are taken as given.
	AutoAssignProcessID = -1
)

// Framing constants for the write/read command protocol.
const (
	// FlatObjectSize is sizeof(flat_object): tag(4) + flags(4) + binder(8) + cookie(8).
	FlatObjectSize = 24

	// OffsetSize is sizeof(binder_size_t) used by the offsets array.
	OffsetSize = 8
)
