package state

import (
	"fmt"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// SaveIssues appends validation issues to a run in one transaction.
func (s *SQLiteStore) SaveIssues(runID string, issues []core.ValidationIssue) (err error) {
	if s.db == nil {
		return errNotOpened
	}
	if len(issues) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var next int
	if err = tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM issues WHERE run_id = ?`, runID).Scan(&next); err != nil {
		return fmt.Errorf("failed to read issue sequence: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO issues (run_id, seq, row_index, field, message) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare issue insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, is := range issues {
		next++
		if _, err = stmt.Exec(runID, next, is.Row, is.Field, is.Message); err != nil {
			return fmt.Errorf("failed to save issue: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit issues: %w", err)
	}
	return nil
}

// GetIssuesForRun returns the issues of a run in insertion order.
func (s *SQLiteStore) GetIssuesForRun(runID string) ([]core.ValidationIssue, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.Query(`SELECT row_index, field, message FROM issues WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.ValidationIssue
	for rows.Next() {
		var is core.ValidationIssue
		if err := rows.Scan(&is.Row, &is.Field, &is.Message); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		out = append(out, is)
	}
	return out, rows.Err()
}
