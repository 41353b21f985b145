// Package dataset holds the tabular records that feed document rendering.
//
// A Dataset is the single source of truth for row data. Every row carries a
// value for every declared column and a revision counter that is bumped on
// each change, which lets caches and in-flight work detect stale inputs.
package dataset

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// ErrEmpty is returned when a source has no header or no data rows.
var ErrEmpty = errors.New("dataset must contain a header and at least one data row")

// Dataset is an ordered set of rows over a fixed column set.
// It is safe for concurrent use.
type Dataset struct {
	mu        sync.RWMutex
	id        string
	columns   []string
	index     map[string]int
	rows      [][]string
	revisions []uint64
}

// New creates a dataset from column names and raw records.
// Short records are padded with empty values; trailing empty extras are dropped.
func New(columns []string, records [][]string) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, ErrEmpty
	}

	index := make(map[string]int, len(columns))
	cols := make([]string, len(columns))
	for i, c := range columns {
		name := strings.TrimSpace(c)
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i+1)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		index[name] = i
		cols[i] = name
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		row, err := normalizeRecord(rec, len(cols))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		rows[i] = row
	}

	return &Dataset{
		id:        uuid.New().String(),
		columns:   cols,
		index:     index,
		rows:      rows,
		revisions: make([]uint64, len(rows)),
	}, nil
}

func normalizeRecord(rec []string, width int) ([]string, error) {
	row := make([]string, width)
	for j, v := range rec {
		if j >= width {
			if strings.TrimSpace(v) != "" {
				return nil, fmt.Errorf("has %d values but only %d columns", len(rec), width)
			}
			continue
		}
		row[j] = v
	}
	return row, nil
}

// ID returns the identity of this load. Reloading produces a new ID.
func (d *Dataset) ID() string {
	return d.id
}

// Columns returns a copy of the column names in order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// HasColumn reports whether name is a declared column.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// ColumnIndex returns the position of a column.
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows)
}

// Row returns a snapshot of row i.
func (d *Dataset) Row(i int) (Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if i < 0 || i >= len(d.rows) {
		return Row{}, fmt.Errorf("%w: %d (rows: %d)", core.ErrRowOutOfRange, i, len(d.rows))
	}
	return d.snapshot(i), nil
}

// Rows returns snapshots of every row.
func (d *Dataset) Rows() []Row {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Row, len(d.rows))
	for i := range d.rows {
		out[i] = d.snapshot(i)
	}
	return out
}

// Head returns snapshots of at most n leading rows.
func (d *Dataset) Head(n int) []Row {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if n > len(d.rows) || n < 0 {
		n = len(d.rows)
	}
	out := make([]Row, n)
	for i := 0; i < n; i++ {
		out[i] = d.snapshot(i)
	}
	return out
}

func (d *Dataset) snapshot(i int) Row {
	values := make([]string, len(d.rows[i]))
	copy(values, d.rows[i])
	return Row{
		Index:    i,
		Revision: d.revisions[i],
		columns:  d.columns,
		index:    d.index,
		values:   values,
	}
}

// Revision returns the current revision of row i.
func (d *Dataset) Revision(i int) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if i < 0 || i >= len(d.revisions) {
		return 0
	}
	return d.revisions[i]
}

// Value returns the value at (row, column).
func (d *Dataset) Value(i int, column string) (string, error) {
	row, err := d.Row(i)
	if err != nil {
		return "", err
	}
	v, ok := row.Lookup(column)
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownColumn, column)
	}
	return v, nil
}

// SetCell updates one value. It returns false when the value was unchanged,
// in which case the revision is not bumped.
func (d *Dataset) SetCell(i int, column, value string) (bool, error) {
	col, ok := d.index[column]
	if !ok {
		return false, fmt.Errorf("%w: %q", core.ErrUnknownColumn, column)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if i < 0 || i >= len(d.rows) {
		return false, fmt.Errorf("%w: %d (rows: %d)", core.ErrRowOutOfRange, i, len(d.rows))
	}
	if d.rows[i][col] == value {
		return false, nil
	}
	d.rows[i][col] = value
	d.revisions[i]++
	return true, nil
}

// Replace swaps every record at once. The record count must match the current
// row count; otherwise nothing changes and ErrRowCountMismatch is returned.
// It returns the indices of rows whose values changed.
func (d *Dataset) Replace(records [][]string) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(records) != len(d.rows) {
		return nil, fmt.Errorf("%w: got %d records, want %d", core.ErrRowCountMismatch, len(records), len(d.rows))
	}

	next := make([][]string, len(records))
	for i, rec := range records {
		row, err := normalizeRecord(rec, len(d.columns))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		next[i] = row
	}

	var changed []int
	for i := range next {
		if !equalValues(d.rows[i], next[i]) {
			d.rows[i] = next[i]
			d.revisions[i]++
			changed = append(changed, i)
		}
	}
	return changed, nil
}

// Records returns a copy of all values, row by row.
func (d *Dataset) Records() [][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([][]string, len(d.rows))
	for i, r := range d.rows {
		out[i] = make([]string, len(r))
		copy(out[i], r)
	}
	return out
}

func equalValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
