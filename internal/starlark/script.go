package starlark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapdoc/pkg/core"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel transform(row) calls.
const DefaultConcurrency = 4

// ErrNoEntryPoint is returned when a script defines neither transform nor
// transform_all.
var ErrNoEntryPoint = errors.New("script must define transform(row) or transform_all(rows)")

// Script is a compiled, frozen transform module bound to a column set.
type Script struct {
	name    string
	columns []string
	row     starlark.Callable
	all     starlark.Callable
	pool    *ThreadPool
}

// Compile executes src once to collect its entry points. transform_all wins
// when both are defined.
func Compile(name string, src []byte, columns []string, logger *slog.Logger) (*Script, error) {
	pool := NewThreadPool(DefaultConcurrency, logger)
	thread := pool.Get(name)
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, name, src, Predeclared(columns))
	pool.Put(thread)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, fmt.Errorf("%s: %s", name, evalErr.Backtrace())
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	s := &Script{name: name, columns: append([]string(nil), columns...), pool: pool}
	if fn, ok := globals["transform_all"].(starlark.Callable); ok {
		s.all = fn
	}
	if fn, ok := globals["transform"].(starlark.Callable); ok {
		s.row = fn
	}
	if s.all == nil && s.row == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoEntryPoint)
	}
	return s, nil
}

// Columns returns the columns the script was compiled against.
func (s *Script) Columns() []string {
	return s.columns
}

// Apply transforms records and returns the new records in order. The
// input is not modified.
func (s *Script) Apply(ctx context.Context, records [][]string) ([][]string, error) {
	if s.all != nil {
		return s.applyAll(ctx, records)
	}

	out := make([][]string, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			dict := RowDict(s.columns, rec)
			result, err := s.pool.Call(gctx, fmt.Sprintf("%s:row%d", s.name, i+1), s.row, starlark.Tuple{dict})
			if err != nil {
				return core.NewRowError(i, "transform", err)
			}
			if result == starlark.None {
				result = dict
			}
			values, err := RowValues(result, s.columns, rec)
			if err != nil {
				return core.NewRowError(i, "transform", err)
			}
			out[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Script) applyAll(ctx context.Context, records [][]string) ([][]string, error) {
	result, err := s.pool.Call(ctx, s.name, s.all, starlark.Tuple{RowList(s.columns, records)})
	if err != nil {
		return nil, fmt.Errorf("transform_all: %w", err)
	}
	var list starlark.Indexable
	switch v := result.(type) {
	case *starlark.List:
		list = v
	case starlark.Tuple:
		list = v
	default:
		return nil, fmt.Errorf("transform_all must return a list, got %s", result.Type())
	}
	if list.Len() != len(records) {
		return nil, fmt.Errorf("%w: got %d rows, want %d", core.ErrRowCountMismatch, list.Len(), len(records))
	}

	out := make([][]string, len(records))
	for i := range records {
		values, err := RowValues(list.Index(i), s.columns, records[i])
		if err != nil {
			return nil, core.NewRowError(i, "transform", err)
		}
		out[i] = values
	}
	return out, nil
}
