package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/leapstack-labs/leapdoc/internal/archive"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/layout"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// ExportResult is the outcome of an export.
type ExportResult struct {
	RunID   string
	Entries []archive.Entry
	// Failed lists the rows that produced no document.
	Failed []int
}

// Export produces one named document per row. Template layouts export the
// filled container; generated layouts export a standalone HTML page, reusing
// cached fragments. Documents are named from nameColumn when it holds a
// value, falling back to documento_N.
//
// Under the halt policy the first failure aborts the export and no entries
// are returned. Otherwise failed rows are left out and reported.
func (p *Pipeline) Export(ctx context.Context, namer *archive.Namer, nameColumn string) (*ExportResult, error) {
	if namer == nil {
		namer = archive.NewNamer("")
	}

	n := p.rows.Len()
	p.logger.Info("starting export", "rows", n, "layout", p.strategy.Kind().String())
	rec := p.startRun(core.RunKindExport, n)
	res := &ExportResult{RunID: rec.runID()}

	var errs []error
	for i := range n {
		start := time.Now()
		doc, row, err := p.document(ctx, i)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			rec.row(i, core.RowRunStatusFailed, err.Error(), elapsed)
			res.Failed = append(res.Failed, i)
			errs = append(errs, core.NewRowError(i, "export", err))
			if p.onError == Halt || ctx.Err() != nil {
				for j := i + 1; j < n; j++ {
					rec.row(j, core.RowRunStatusSkipped, "skipped: export halted", 0)
				}
				runErr := errors.Join(errs...)
				rec.finish(ctx, runErr)
				res.Entries = nil
				return res, runErr
			}
			continue
		}

		hint := ""
		if nameColumn != "" {
			hint = row.Get(nameColumn)
		}
		res.Entries = append(res.Entries, archive.Entry{
			Name:    namer.Name(i, hint, doc.Ext),
			Content: doc.Content,
		})
		rec.row(i, core.RowRunStatusSuccess, "", elapsed)
	}

	runErr := errors.Join(errs...)
	rec.finish(ctx, runErr)
	p.logger.Info("export finished", "documents", len(res.Entries), "failed", len(res.Failed))
	return res, runErr
}

func (p *Pipeline) document(ctx context.Context, i int) (layout.Document, dataset.Row, error) {
	row, err := p.rows.Row(i)
	if err != nil {
		return layout.Document{}, row, err
	}

	if !p.generated() {
		doc, err := p.strategy.Document(ctx, row, p.rc)
		return doc, row, err
	}

	frag, _, err := p.render(ctx, row)
	if err != nil {
		return layout.Document{}, row, err
	}
	return layout.PageDocument(frag), row, nil
}
