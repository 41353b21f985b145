package core

import "time"

// Store defines the interface for run history persistence.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(kind RunKind, layout LayoutKind, rows int) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetLatestRun(kind RunKind) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	// Row run operations
	RecordRowRun(rowRun *RowRun) error
	UpdateRowRun(id string, status RowRunStatus, errMsg string, durationMS int64) error
	GetRowRunsForRun(runID string) ([]*RowRun, error)

	// Validation issue operations
	SaveIssues(runID string, issues []ValidationIssue) error
	GetIssuesForRun(runID string) ([]ValidationIssue, error)
}

// RunKind identifies what a run did.
type RunKind string

// Run kinds.
const (
	RunKindRender   RunKind = "render"
	RunKindExport   RunKind = "export"
	RunKindValidate RunKind = "validate"
)

// RunStatus represents the status of a bulk run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents one bulk render, export or validation pass.
type Run struct {
	ID          string
	Kind        RunKind
	Layout      LayoutKind
	Rows        int
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// RowRunStatus represents the status of a single row within a run.
type RowRunStatus string

// Row run status constants.
const (
	RowRunStatusPending RowRunStatus = "pending"
	RowRunStatusRunning RowRunStatus = "running"
	RowRunStatusSuccess RowRunStatus = "success"
	RowRunStatusFailed  RowRunStatus = "failed"
	RowRunStatusSkipped RowRunStatus = "skipped"
)

// RowRun represents the processing of one row within a run.
type RowRun struct {
	ID          string
	RunID       string
	Row         int
	Status      RowRunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
	DurationMS  int64
}
