package engine

import (
	"fmt"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/session"
)

// LoadDataset replaces the working dataset. The layout, mapping, cache,
// active row and overlay are discarded.
func (e *Engine) LoadDataset(ds *dataset.Dataset) error {
	if ds == nil {
		return ErrNoData
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.applyLocked(session.LoadDataset{Rows: ds.Len()}); err != nil {
		return err
	}
	e.ds = ds
	e.resetLayoutLocked()
	e.logger.Info("dataset loaded", "rows", ds.Len(), "columns", len(ds.Columns()))
	return nil
}

// LoadFile reads a CSV or XLSX file and loads it.
func (e *Engine) LoadFile(path string, opts dataset.Options) (*dataset.Dataset, error) {
	ds, err := dataset.LoadFile(path, opts)
	if err != nil {
		return nil, err
	}
	if err := e.LoadDataset(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// ClearData unloads the dataset and everything derived from it.
func (e *Engine) ClearData() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.applyLocked(session.ClearData{}); err != nil {
		return err
	}
	e.ds = nil
	e.resetLayoutLocked()
	return nil
}

// EditCell changes one value. The row's cached fragment is invalidated;
// other rows keep theirs.
func (e *Engine) EditCell(row int, column, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ds == nil {
		return ErrNoData
	}
	changed, err := e.ds.SetCell(row, column, value)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	delete(e.fragments, row)
	return e.applyLocked(session.EditCell{Row: row})
}

// SaveDataset writes the (possibly edited) dataset as CSV or XLSX.
func (e *Engine) SaveDataset(path string, opts dataset.Options) error {
	ds := e.Dataset()
	if ds == nil {
		return ErrNoData
	}
	if err := dataset.SaveFile(path, ds, opts); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	return nil
}
