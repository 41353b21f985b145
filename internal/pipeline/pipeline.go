// Package pipeline renders dataset rows through the active layout strategy.
//
// Rendering is strictly sequential. Calls to the generation service are
// spaced by a fixed minimum delay, and generated fragments are served from a
// revision-keyed cache when possible. A bulk render always yields exactly one
// fragment per row: under the halt policy the first failing row carries an
// error fragment and every later row a skipped fragment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/layout"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// DefaultSpacing is the minimum delay between generation calls.
const DefaultSpacing = 1100 * time.Millisecond

// Rows is the row source. Rows are read at their turn, so edits made during
// a bulk render are reflected for rows not yet rendered.
type Rows interface {
	Len() int
	Row(i int) (dataset.Row, error)
}

// Cache stores generated fragments by row and revision.
type Cache interface {
	Get(row int, revision uint64) (core.Fragment, bool)
	Put(f core.Fragment)
}

// ErrorPolicy decides what happens after a row fails in a bulk operation.
type ErrorPolicy int

// Error policies.
const (
	// Halt stops at the first failure; later rows are skipped.
	Halt ErrorPolicy = iota
	// Continue attempts every row.
	Continue
)

// Config configures a Pipeline.
type Config struct {
	Strategy layout.Strategy
	Rows     Rows
	// Cache is consulted for generated layouts only. Optional.
	Cache Cache
	// Store records bulk runs. Optional.
	Store         core.Store
	RenderContext layout.RenderContext
	Spacing       time.Duration
	OnError       ErrorPolicy
	Logger        *slog.Logger
}

// Pipeline renders and exports rows.
type Pipeline struct {
	strategy layout.Strategy
	rows     Rows
	cache    Cache
	store    core.Store
	rc       layout.RenderContext
	onError  ErrorPolicy
	logger   *slog.Logger
	throttle *throttle
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Strategy == nil {
		return nil, errors.New("pipeline: no layout strategy")
	}
	if cfg.Rows == nil {
		return nil, errors.New("pipeline: no rows")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	spacing := cfg.Spacing
	if spacing < 0 {
		spacing = 0
	} else if spacing == 0 {
		spacing = DefaultSpacing
	}

	return &Pipeline{
		strategy: cfg.Strategy,
		rows:     cfg.Rows,
		cache:    cfg.Cache,
		store:    cfg.Store,
		rc:       cfg.RenderContext,
		onError:  cfg.OnError,
		logger:   logger,
		throttle: newThrottle(spacing),
	}, nil
}

func (p *Pipeline) generated() bool {
	return p.strategy.Kind() == core.LayoutGenerated
}

// RenderOne renders row i. Generated layouts are served from the cache when
// the cached fragment matches the row's current revision, and successful
// renders are stored.
func (p *Pipeline) RenderOne(ctx context.Context, i int) (core.Fragment, error) {
	row, err := p.rows.Row(i)
	if err != nil {
		return core.Fragment{}, err
	}
	frag, _, err := p.render(ctx, row)
	return frag, err
}

// render returns the fragment for row and whether the service was called.
func (p *Pipeline) render(ctx context.Context, row dataset.Row) (core.Fragment, bool, error) {
	if !p.generated() {
		frag, err := p.strategy.Render(ctx, row, p.rc)
		return frag, false, err
	}

	if p.cache != nil {
		if frag, ok := p.cache.Get(row.Index, row.Revision); ok {
			p.logger.Debug("fragment cache hit", "row", row.Index)
			return frag, false, nil
		}
	}

	if err := p.throttle.wait(ctx); err != nil {
		return layout.SkippedFragment(p.strategy.Kind(), row.Index), false, err
	}
	frag, err := p.strategy.Render(ctx, row, p.rc)
	p.throttle.done()
	if err == nil && p.cache != nil {
		p.cache.Put(frag)
	}
	return frag, true, err
}

// Result is the outcome of a bulk render.
type Result struct {
	RunID     string
	Fragments []core.Fragment
	Failed    int
	Skipped   int
}

// RenderAll renders every row in order. onFragment, when set, is called as
// each fragment becomes available. The returned error joins the row
// failures; the result is complete even when an error is returned.
func (p *Pipeline) RenderAll(ctx context.Context, onFragment func(core.Fragment)) (*Result, error) {
	n := p.rows.Len()
	p.logger.Info("starting bulk render", "rows", n, "layout", p.strategy.Kind().String())

	rec := p.startRun(core.RunKindRender, n)
	res := &Result{RunID: rec.runID(), Fragments: make([]core.Fragment, 0, n)}
	emit := func(f core.Fragment) {
		res.Fragments = append(res.Fragments, f)
		if onFragment != nil {
			onFragment(f)
		}
	}

	var errs []error
	halted := false
	for i := range n {
		if halted {
			emit(layout.SkippedFragment(p.strategy.Kind(), i))
			res.Skipped++
			rec.row(i, core.RowRunStatusSkipped, "skipped: processing halted", 0)
			continue
		}

		start := time.Now()
		row, err := p.rows.Row(i)
		var frag core.Fragment
		if err == nil {
			frag, _, err = p.render(ctx, row)
		} else {
			frag = layout.ErrorFragment(p.strategy.Kind(), dataset.NewRow(i, nil, nil), err.Error(), err)
		}
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			if ctx.Err() != nil {
				frag = layout.SkippedFragment(p.strategy.Kind(), i)
				res.Skipped++
				rec.row(i, core.RowRunStatusSkipped, "cancelled", elapsed)
				emit(frag)
				halted = true
				errs = append(errs, ctx.Err())
				continue
			}
			p.logger.Debug("row render failed", "row", i, "error", err)
			rec.row(i, core.RowRunStatusFailed, err.Error(), elapsed)
			res.Failed++
			errs = append(errs, core.NewRowError(i, "render", err))
			emit(frag)
			if p.onError == Halt || errors.Is(err, core.ErrServiceAuthOrQuota) || errors.Is(err, core.ErrNoCredential) {
				halted = true
			}
			continue
		}

		rec.row(i, core.RowRunStatusSuccess, "", elapsed)
		emit(frag)
	}

	runErr := errors.Join(errs...)
	rec.finish(ctx, runErr)
	p.logger.Info("bulk render finished", "rows", n, "failed", res.Failed, "skipped", res.Skipped)
	return res, runErr
}

// throttle enforces a minimum spacing between the end of one service call
// and the start of the next.
type throttle struct {
	spacing time.Duration
	mu      sync.Mutex
	last    time.Time
}

func newThrottle(spacing time.Duration) *throttle {
	return &throttle{spacing: spacing}
}

func (t *throttle) wait(ctx context.Context) error {
	t.mu.Lock()
	last := t.last
	t.mu.Unlock()

	if last.IsZero() || t.spacing <= 0 {
		return ctx.Err()
	}
	remaining := t.spacing - time.Since(last)
	if remaining <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for service spacing: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (t *throttle) done() {
	t.mu.Lock()
	t.last = time.Now()
	t.mu.Unlock()
}
