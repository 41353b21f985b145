package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/overlay"
	"github.com/leapstack-labs/leapdoc/internal/session"
	"github.com/leapstack-labs/leapdoc/internal/validation"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Validate checks every row and stores the issues in the session. Rows are
// validated concurrently. Issues computed against a superseded session are
// discarded with core.ErrStaleResult. A row edited while validation ran
// keeps its previous issues.
func (e *Engine) Validate(ctx context.Context) ([]core.ValidationIssue, error) {
	e.mu.Lock()
	if e.ds == nil {
		e.mu.Unlock()
		return nil, ErrNoData
	}
	t := e.ticketLocked(session.NoRow)
	rows := e.ds.Rows()
	layoutKind := e.state.Layout
	v := e.validator
	e.mu.Unlock()

	var runID string
	if e.store != nil {
		if run, err := e.store.CreateRun(core.RunKindValidate, layoutKind, len(rows)); err == nil {
			runID = run.ID
		} else {
			e.logger.Warn("failed to record validation run", "error", err)
		}
	}

	e.logger.Info("validating rows", "rows", len(rows))
	issues, err := validation.ValidateAll(ctx, v, rows, validation.Options{
		Concurrency: e.cfg.Concurrency,
		Logger:      e.logger,
	})

	if runID != "" {
		_ = e.store.SaveIssues(runID, issues)
		switch {
		case ctx.Err() != nil:
			_ = e.store.CompleteRun(runID, core.RunStatusCancelled, ctx.Err().Error())
		case err != nil:
			_ = e.store.CompleteRun(runID, core.RunStatusFailed, err.Error())
		default:
			_ = e.store.CompleteRun(runID, core.RunStatusCompleted, "")
		}
	}

	if issues == nil && err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if t.Epoch != e.state.Epoch {
		return issues, errors.Join(err, fmt.Errorf("%w: validation issues", core.ErrStaleResult))
	}
	merged := e.mergeFreshLocked(rows, issues)
	if applyErr := e.applyLocked(session.SetIssues{Epoch: t.Epoch, Issues: merged}); applyErr != nil {
		return issues, errors.Join(err, applyErr)
	}
	return issues, err
}

// mergeFreshLocked keeps the computed issues of rows whose revision is
// unchanged since validation started. Edited rows keep the issues the
// session already holds for them.
func (e *Engine) mergeFreshLocked(rows []dataset.Row, issues []core.ValidationIssue) []core.ValidationIssue {
	edited := make(map[int]bool)
	for _, r := range rows {
		if e.ds.Revision(r.Index) != r.Revision {
			edited[r.Index] = true
		}
	}
	if len(edited) == 0 {
		return issues
	}

	e.logger.Debug("dropping issues of edited rows", "rows", len(edited))
	merged := make([]core.ValidationIssue, 0, len(issues))
	for _, is := range issues {
		if !edited[is.Row] {
			merged = append(merged, is)
		}
	}
	for _, is := range e.state.Issues() {
		if edited[is.Row] {
			merged = append(merged, is)
		}
	}
	sort.SliceStable(merged, func(a, b int) bool { return merged[a].Row < merged[b].Row })
	return merged
}

// ValidateRow checks one row with a single validator call and replaces that
// row's issues in the session. Issues of other rows are kept. The result is
// discarded with core.ErrStaleResult when the session or the row changed
// while the call ran.
func (e *Engine) ValidateRow(ctx context.Context, row int) ([]core.ValidationIssue, error) {
	e.mu.Lock()
	if e.ds == nil {
		e.mu.Unlock()
		return nil, ErrNoData
	}
	r, err := e.ds.Row(row)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	t := e.ticketLocked(row)
	v := e.validator
	e.mu.Unlock()

	e.logger.Debug("validating row", "row", row)
	issues, err := v.Validate(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", row+1, err)
	}
	for i := range issues {
		issues[i].Row = row
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(t) {
		return issues, fmt.Errorf("%w: validation of row %d", core.ErrStaleResult, row+1)
	}
	if err := e.applyLocked(session.SetRowIssues{Epoch: t.Epoch, Row: row, Issues: issues}); err != nil {
		return issues, err
	}
	return issues, nil
}

// ValidateActive validates the active row.
func (e *Engine) ValidateActive(ctx context.Context) ([]core.ValidationIssue, error) {
	row, ok := e.State().Active()
	if !ok {
		return nil, fmt.Errorf("%w: no active row", core.ErrInvalidTransition)
	}
	return e.ValidateRow(ctx, row)
}

// SetValidator replaces the row validator, for validators that depend on
// the loaded columns.
func (e *Engine) SetValidator(v validation.Validator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v == nil {
		v = validation.ServiceValidator{Generator: e.gen}
	}
	e.validator = v
}

// SetIssues replaces the session's validation issues, for issues obtained
// elsewhere (for example loaded from the run history).
func (e *Engine) SetIssues(issues []core.ValidationIssue) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(session.SetIssues{Epoch: e.state.Epoch, Issues: issues})
}

// Overlay applies the session's issues to the rendered fragments and
// returns the marked fragments, flagged cells and hooks.
func (e *Engine) Overlay() (overlay.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ds == nil {
		return overlay.Result{}, ErrNoData
	}

	oc := overlay.Context{Layout: e.state.Layout, Columns: e.ds.Columns()}
	if e.state.Layout == core.LayoutTemplate && e.state.MappingConfirmed {
		oc.Mapping = e.draft
	}
	res, err := e.overlay.Apply(e.sortedFragmentsLocked(), e.state.Issues(), oc)
	if err != nil {
		return overlay.Result{}, fmt.Errorf("overlay: %w", err)
	}
	for _, f := range res.Fragments {
		e.fragments[f.Row] = f
	}
	return res, nil
}

// Activate fires a one-shot issue hook. The first activation selects the
// issue's row and returns its target; later activations return false.
func (e *Engine) Activate(hook string) (overlay.Target, bool) {
	target, ok := e.overlay.Activate(hook)
	if !ok {
		return target, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.applyLocked(session.SelectRow{Row: target.Row}); err != nil {
		e.logger.Debug("hook target not selected", "hook", hook, "error", err)
	}
	return target, true
}
