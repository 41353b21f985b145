package engine

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapdoc/internal/analysis"
	"github.com/leapstack-labs/leapdoc/internal/session"
	"github.com/leapstack-labs/leapdoc/internal/transform"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Transform rewrites every record through tr. The result replaces the
// dataset only if no row changed while tr ran and the record count is
// unchanged. It returns the indices of rows whose values changed.
func (e *Engine) Transform(ctx context.Context, tr transform.Transformer) ([]int, error) {
	e.mu.Lock()
	if e.ds == nil {
		e.mu.Unlock()
		return nil, ErrNoData
	}
	t := e.ticketLocked(session.NoRow)
	revisions := make([]uint64, e.ds.Len())
	for i := range revisions {
		revisions[i] = e.ds.Revision(i)
	}
	columns := e.ds.Columns()
	records := e.ds.Records()
	e.mu.Unlock()

	out, err := tr.Transform(ctx, columns, records)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	if len(out) != len(records) {
		return nil, fmt.Errorf("transform: %w: got %d rows, want %d", core.ErrRowCountMismatch, len(out), len(records))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(t) || e.ds.Len() != len(revisions) {
		return nil, fmt.Errorf("%w: transform", core.ErrStaleResult)
	}
	for i, rev := range revisions {
		if e.ds.Revision(i) != rev {
			return nil, fmt.Errorf("%w: row %d changed during transform", core.ErrStaleResult, i+1)
		}
	}

	changed, err := e.ds.Replace(out)
	if err != nil {
		return nil, err
	}
	for _, row := range changed {
		delete(e.fragments, row)
		if err := e.applyLocked(session.EditCell{Row: row}); err != nil {
			return changed, err
		}
	}
	e.logger.Info("dataset transformed", "changed", len(changed))
	return changed, nil
}

// Analyze summarises the dataset with the generation service.
func (e *Engine) Analyze(ctx context.Context) (*analysis.Report, error) {
	ds := e.Dataset()
	if ds == nil {
		return nil, ErrNoData
	}
	return analysis.Analyze(ctx, e.gen, ds)
}
