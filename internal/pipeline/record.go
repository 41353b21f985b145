package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// recorder writes run history. A recorder without a store does nothing.
// Store failures are logged and never fail the run.
type recorder struct {
	store  core.Store
	logger *slog.Logger
	run    *core.Run
}

func (p *Pipeline) startRun(kind core.RunKind, rows int) *recorder {
	rec := &recorder{store: p.store, logger: p.logger}
	if p.store == nil {
		return rec
	}

	run, err := p.store.CreateRun(kind, p.strategy.Kind(), rows)
	if err != nil {
		p.logger.Warn("failed to record run", "kind", kind, "error", err)
		return rec
	}
	p.logger.Debug("created run", "run_id", run.ID, "kind", kind)
	rec.run = run
	return rec
}

func (r *recorder) runID() string {
	if r.run == nil {
		return ""
	}
	return r.run.ID
}

func (r *recorder) row(i int, status core.RowRunStatus, errMsg string, durationMS int64) {
	if r.run == nil {
		return
	}
	rr := &core.RowRun{RunID: r.run.ID, Row: i, Status: core.RowRunStatusRunning}
	if err := r.store.RecordRowRun(rr); err != nil {
		r.logger.Warn("failed to record row run", "run_id", r.run.ID, "row", i, "error", err)
		return
	}
	_ = r.store.UpdateRowRun(rr.ID, status, errMsg, durationMS)
}

func (r *recorder) finish(ctx context.Context, runErr error) {
	if r.run == nil {
		return
	}
	status := core.RunStatusCompleted
	msg := ""
	switch {
	case ctx.Err() != nil || errors.Is(runErr, context.Canceled):
		status = core.RunStatusCancelled
		msg = "cancelled"
	case runErr != nil:
		status = core.RunStatusFailed
		msg = summarize(runErr)
	}
	_ = r.store.CompleteRun(r.run.ID, status, msg)
}

func summarize(err error) string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		if n := len(joined.Unwrap()); n > 1 {
			return fmt.Sprintf("%d row(s) failed", n)
		}
	}
	return err.Error()
}
