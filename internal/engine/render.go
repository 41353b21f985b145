package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapdoc/internal/archive"
	"github.com/leapstack-labs/leapdoc/internal/layout"
	"github.com/leapstack-labs/leapdoc/internal/pipeline"
	"github.com/leapstack-labs/leapdoc/internal/session"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Ticket identifies the state an external call was started from. A result
// is applied only while the epoch, and for row work the row revision, are
// unchanged.
type Ticket struct {
	Epoch    uint64
	Row      int
	Revision uint64
}

func (e *Engine) ticketLocked(row int) Ticket {
	t := Ticket{Epoch: e.state.Epoch, Row: row}
	if row != session.NoRow && e.ds != nil {
		t.Revision = e.ds.Revision(row)
	}
	return t
}

func (e *Engine) currentLocked(t Ticket) bool {
	if t.Epoch != e.state.Epoch {
		return false
	}
	if t.Row == session.NoRow || e.ds == nil {
		return true
	}
	return e.ds.Revision(t.Row) == t.Revision
}

// readyPipelineLocked returns the pipeline for the active layout.
func (e *Engine) readyPipelineLocked() (*pipeline.Pipeline, error) {
	if e.ds == nil {
		return nil, ErrNoData
	}
	if e.state.Layout == core.LayoutNone {
		return nil, fmt.Errorf("%w: no layout selected", core.ErrInvalidTransition)
	}
	if e.pipe == nil {
		return nil, fmt.Errorf("%w: confirm the field mapping first", core.ErrMappingIncomplete)
	}
	return e.pipe, nil
}

// RenderRow renders one row. Before a layout is chosen the row is shown as
// plain labelled values. The fragment is returned even when err is set.
func (e *Engine) RenderRow(ctx context.Context, row int) (core.Fragment, error) {
	e.mu.Lock()
	if e.ds == nil {
		e.mu.Unlock()
		return core.Fragment{}, ErrNoData
	}
	if row < 0 || row >= e.ds.Len() {
		e.mu.Unlock()
		return core.Fragment{}, fmt.Errorf("%w: row %d of %d", core.ErrRowOutOfRange, row+1, e.ds.Len())
	}
	if e.state.Layout == core.LayoutNone {
		r, err := e.ds.Row(row)
		e.mu.Unlock()
		if err != nil {
			return core.Fragment{}, err
		}
		return core.Fragment{Row: row, Markup: layout.PlainText(r), Status: core.FragmentOK, Revision: r.Revision}, nil
	}
	pipe, err := e.readyPipelineLocked()
	if err != nil {
		e.mu.Unlock()
		return core.Fragment{}, err
	}
	t := e.ticketLocked(row)
	e.mu.Unlock()

	frag, renderErr := pipe.RenderOne(ctx, row)

	e.mu.Lock()
	defer e.mu.Unlock()
	if t.Epoch != e.state.Epoch {
		return frag, fmt.Errorf("%w: row %d", core.ErrStaleResult, row+1)
	}
	if frag.Revision == e.ds.Revision(row) {
		e.fragments[row] = frag
	}
	return frag, renderErr
}

// RenderActive renders the active row.
func (e *Engine) RenderActive(ctx context.Context) (core.Fragment, error) {
	row, ok := e.State().Active()
	if !ok {
		return core.Fragment{}, fmt.Errorf("%w: no active row", core.ErrInvalidTransition)
	}
	return e.RenderRow(ctx, row)
}

// RenderAll renders every row in order. onFragment, when set, is called as
// each fragment is ready.
func (e *Engine) RenderAll(ctx context.Context, onFragment func(core.Fragment)) (*pipeline.Result, error) {
	e.mu.Lock()
	pipe, err := e.readyPipelineLocked()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	t := e.ticketLocked(session.NoRow)
	e.mu.Unlock()

	res, err := pipe.RenderAll(ctx, func(f core.Fragment) {
		e.mu.Lock()
		if e.currentLocked(t) && e.ds.Revision(f.Row) == f.Revision {
			e.fragments[f.Row] = f
		}
		e.mu.Unlock()
		if onFragment != nil {
			onFragment(f)
		}
	})

	e.mu.Lock()
	stale := !e.currentLocked(t)
	e.mu.Unlock()
	if stale {
		return res, errors.Join(err, fmt.Errorf("%w: bulk render", core.ErrStaleResult))
	}
	return res, err
}

// Fragments returns the last rendered fragment of each row, in row order.
func (e *Engine) Fragments() []core.Fragment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedFragmentsLocked()
}

// Export produces one named document per row.
func (e *Engine) Export(ctx context.Context) (*pipeline.ExportResult, error) {
	e.mu.Lock()
	pipe, err := e.readyPipelineLocked()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return pipe.Export(ctx, archive.NewNamer(""), e.cfg.NameColumn)
}

// Archive exports every row, zips the documents and stores the archive
// through sink. It returns the archive location.
func (e *Engine) Archive(ctx context.Context, sink archive.Sink, name string) (string, *pipeline.ExportResult, error) {
	res, err := e.Export(ctx)
	if res == nil || len(res.Entries) == 0 {
		if err == nil {
			err = errors.New("export produced no documents")
		}
		return "", res, err
	}
	data, buildErr := archive.Build(res.Entries)
	if buildErr != nil {
		return "", res, errors.Join(err, buildErr)
	}
	location, putErr := sink.Put(ctx, name, data)
	if putErr != nil {
		return "", res, errors.Join(err, putErr)
	}
	e.logger.Info("archive stored", "location", location, "documents", len(res.Entries))
	return location, res, err
}
