package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// RecordRowRun inserts a row run. An empty ID is filled in.
func (s *SQLiteStore) RecordRowRun(rr *core.RowRun) error {
	if s.db == nil {
		return errNotOpened
	}
	if rr.ID == "" {
		rr.ID = generateID()
	}
	if rr.StartedAt.IsZero() {
		rr.StartedAt = time.Now()
	}
	rr.StartedAt = fromMillis(toMillis(rr.StartedAt))

	var completedAt sql.NullInt64
	if rr.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: toMillis(*rr.CompletedAt), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO row_runs (id, run_id, row_index, status, started_at, completed_at, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rr.ID, rr.RunID, rr.Row, string(rr.Status), toMillis(rr.StartedAt), completedAt, nullString(rr.Error), rr.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record row run: %w", err)
	}
	return nil
}

// UpdateRowRun sets the final status of a row run.
func (s *SQLiteStore) UpdateRowRun(id string, status core.RowRunStatus, errMsg string, durationMS int64) error {
	if s.db == nil {
		return errNotOpened
	}

	result, err := s.db.Exec(
		`UPDATE row_runs SET status = ?, completed_at = ?, error = ?, duration_ms = ? WHERE id = ?`,
		string(status), toMillis(time.Now()), nullString(errMsg), durationMS, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update row run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("row run not found: %s", id)
	}
	return nil
}

// GetRowRunsForRun returns the row runs of a run ordered by row.
func (s *SQLiteStore) GetRowRunsForRun(runID string) ([]*core.RowRun, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, row_index, status, started_at, completed_at, error, duration_ms
		 FROM row_runs WHERE run_id = ? ORDER BY row_index, started_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get row runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.RowRun
	for rows.Next() {
		var (
			rr          core.RowRun
			status      string
			startedAt   int64
			completedAt sql.NullInt64
			errMsg      sql.NullString
		)
		if err := rows.Scan(&rr.ID, &rr.RunID, &rr.Row, &status, &startedAt, &completedAt, &errMsg, &rr.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan row run: %w", err)
		}
		rr.Status = core.RowRunStatus(status)
		rr.StartedAt = fromMillis(startedAt)
		rr.CompletedAt = nullMillis(completedAt)
		rr.Error = errMsg.String
		out = append(out, &rr)
	}
	return out, rows.Err()
}
