package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

const runColumns = `id, kind, layout, row_count, status, started_at, completed_at, error`

// CreateRun creates a new run in the running state.
func (s *SQLiteStore) CreateRun(kind core.RunKind, layout core.LayoutKind, rows int) (*core.Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run := &core.Run{
		ID:        generateID(),
		Kind:      kind,
		Layout:    layout,
		Rows:      rows,
		Status:    core.RunStatusRunning,
		StartedAt: fromMillis(toMillis(time.Now())),
	}
	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("kind", string(kind)))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, kind, layout, row_count, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), string(run.Layout), run.Rows, string(run.Status), toMillis(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, errMsg string) error {
	if s.db == nil {
		return errNotOpened
	}

	result, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), toMillis(time.Now()), nullString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetLatestRun retrieves the most recent run of a kind, or nil when there is none.
func (s *SQLiteStore) GetLatestRun(kind core.RunKind) (*core.Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run, err := scanRun(s.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE kind = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		string(kind),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*core.Run, error) {
	var (
		run                  core.Run
		kind, layout, status string
		startedAt            int64
		completedAt          sql.NullInt64
		errMsg               sql.NullString
	)
	if err := row.Scan(&run.ID, &kind, &layout, &run.Rows, &status, &startedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}
	run.Kind = core.RunKind(kind)
	run.Layout = core.LayoutKind(layout)
	run.Status = core.RunStatus(status)
	run.StartedAt = fromMillis(startedAt)
	run.CompletedAt = nullMillis(completedAt)
	run.Error = errMsg.String
	return &run, nil
}
