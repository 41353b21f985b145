// Package state persists the history of bulk renders, exports and
// validation passes in SQLite.
package state

import "github.com/leapstack-labs/leapdoc/pkg/core"

// Type aliases so callers of this package need not import pkg/core for the
// common types.
type (
	// Store is an alias for core.Store.
	Store = core.Store

	// Run is an alias for core.Run.
	Run = core.Run

	// RunStatus is an alias for core.RunStatus.
	RunStatus = core.RunStatus

	// RowRun is an alias for core.RowRun.
	RowRun = core.RowRun

	// RowRunStatus is an alias for core.RowRunStatus.
	RowRunStatus = core.RowRunStatus
)

// Re-exported status constants.
const (
	RunStatusRunning   = core.RunStatusRunning
	RunStatusCompleted = core.RunStatusCompleted
	RunStatusFailed    = core.RunStatusFailed
	RunStatusCancelled = core.RunStatusCancelled

	RowRunStatusPending = core.RowRunStatusPending
	RowRunStatusRunning = core.RowRunStatusRunning
	RowRunStatusSuccess = core.RowRunStatusSuccess
	RowRunStatusFailed  = core.RowRunStatusFailed
	RowRunStatusSkipped = core.RowRunStatusSkipped
)

var _ Store = (*SQLiteStore)(nil)
