package binder

import "github.com/openbinder/binder/internal/constants"

// Re-exported limits a host needs to drive the control surface without
// reaching into internal packages.
const (
	// MaxTransactionSize is the largest data payload a single transaction
	// may carry.
	MaxTransactionSize = constants.MaxTransactionSize

	// DefaultMaxThreads is the worker budget OpenOptions.MaxThreads falls
	// back to when left at zero.
	DefaultMaxThreads = constants.DefaultMaxThreads

	// AutoAssignProcessID is -1. Open does not read it: OpenOptions.PID is
	// used exactly as given and no process id is assigned automatically.
	AutoAssignProcessID = constants.AutoAssignProcessID
)
