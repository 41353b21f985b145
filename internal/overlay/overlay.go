// Package overlay projects validation issues onto rendered fragments and the
// source data grid.
//
// An issue names a row and a logical field. Under a generated layout the
// field is the marker key itself. Under a template layout the field is a
// column and is translated through the confirmed mapping into every
// placeholder that renders it. Each matched marker is flagged with a message
// and a hook id; activating a hook selects the offending cell once.
package overlay

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapdoc/internal/mapping"
	"github.com/leapstack-labs/leapdoc/internal/markup"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Context describes how issue fields are resolved.
type Context struct {
	Layout core.LayoutKind
	// Mapping is the confirmed mapping of a template layout.
	Mapping *mapping.Mapping
	Columns []string
}

// Cell is a flagged grid cell.
type Cell struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// Highlight records the markers flagged for one issue.
type Highlight struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Hook    string `json:"hook"`
	Markers int    `json:"markers"`
}

// Target is what a hook selects.
type Target struct {
	Row    int
	Column string
}

// Result is the outcome of applying issues.
type Result struct {
	// Fragments are the input fragments with the overlay applied.
	Fragments  []core.Fragment
	Cells      []Cell
	Highlights []Highlight
	// Unmarked lists issues that flagged a cell but no rendered marker.
	Unmarked []core.ValidationIssue
	// Unresolved lists issues whose field names no known column.
	Unresolved []core.ValidationIssue
	// Clean is true when there were no issues at all.
	Clean bool
}

// Overlay owns the hooks of the most recent application.
type Overlay struct {
	mu     sync.Mutex
	hooks  map[string]Target
	logger *slog.Logger
}

// New creates an overlay.
func New(logger *slog.Logger) *Overlay {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Overlay{hooks: make(map[string]Target), logger: logger}
}

// Apply clears any previous overlay from fragments, then flags the markers
// and cells named by issues. Hooks from earlier applications are discarded.
func (o *Overlay) Apply(fragments []core.Fragment, issues []core.ValidationIssue, oc Context) (Result, error) {
	res := Result{Clean: len(issues) == 0}

	parsed := make(map[int]*markup.Fragment, len(fragments))
	for _, f := range fragments {
		if f.Status != core.FragmentOK {
			continue
		}
		doc, err := markup.Parse(f.Markup)
		if err != nil {
			return Result{}, fmt.Errorf("row %d: %w", f.Row+1, err)
		}
		doc.ClearOverlay()
		parsed[f.Row] = doc
	}

	hooks := make(map[string]Target)
	cells := make(map[Target][]string)
	var cellOrder []Target
	r := newResolver(oc)

	for n, issue := range issues {
		column, fields, ok := r.resolve(issue.Field)
		if !ok {
			o.logger.Debug("unresolved validation issue", "row", issue.Row, "field", issue.Field)
			res.Unresolved = append(res.Unresolved, issue)
			continue
		}

		target := Target{Row: issue.Row, Column: column}
		if _, seen := cells[target]; !seen {
			cellOrder = append(cellOrder, target)
		}
		cells[target] = append(cells[target], issue.Message)

		hook := hookID(issue.Row, n)
		hooks[hook] = target

		marked := 0
		if doc, ok := parsed[issue.Row]; ok {
			for _, field := range fields {
				count := doc.Mark(field, issue.Message, hook)
				if count > 0 {
					res.Highlights = append(res.Highlights, Highlight{Row: issue.Row, Field: field, Hook: hook, Markers: count})
				}
				marked += count
			}
		}
		if marked == 0 {
			res.Unmarked = append(res.Unmarked, issue)
		}
	}

	for _, t := range cellOrder {
		res.Cells = append(res.Cells, Cell{Row: t.Row, Column: t.Column, Message: strings.Join(cells[t], "; ")})
	}

	res.Fragments = make([]core.Fragment, len(fragments))
	for i, f := range fragments {
		res.Fragments[i] = f
		doc, ok := parsed[f.Row]
		if !ok {
			continue
		}
		out, err := doc.HTML()
		if err != nil {
			return Result{}, fmt.Errorf("row %d: %w", f.Row+1, err)
		}
		res.Fragments[i].Markup = out
	}

	o.mu.Lock()
	o.hooks = hooks
	o.mu.Unlock()
	return res, nil
}

// Activate returns the cell a hook points at. Each hook fires once; later
// activations report false.
func (o *Overlay) Activate(hook string) (Target, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, ok := o.hooks[hook]
	if ok {
		delete(o.hooks, hook)
	}
	return t, ok
}

// Reset discards every pending hook.
func (o *Overlay) Reset() {
	o.mu.Lock()
	o.hooks = make(map[string]Target)
	o.mu.Unlock()
}

func hookID(row, n int) string {
	return "issue-" + strconv.Itoa(row) + "-" + strconv.Itoa(n)
}

type resolver struct {
	oc      Context
	columns map[string]string // lowercased -> canonical
}

func newResolver(oc Context) *resolver {
	r := &resolver{oc: oc, columns: make(map[string]string, len(oc.Columns))}
	for _, c := range oc.Columns {
		r.columns[c] = c
	}
	for _, c := range oc.Columns {
		if _, exists := r.columns[strings.ToLower(c)]; !exists {
			r.columns[strings.ToLower(c)] = c
		}
	}
	return r
}

func (r *resolver) column(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if c, ok := r.columns[name]; ok {
		return c, true
	}
	c, ok := r.columns[strings.ToLower(name)]
	return c, ok
}

// resolve returns the grid column and marker keys for an issue field.
func (r *resolver) resolve(field string) (string, []string, bool) {
	if r.oc.Layout != core.LayoutTemplate || r.oc.Mapping == nil {
		col, ok := r.column(field)
		if !ok {
			return "", nil, false
		}
		return col, []string{col}, true
	}

	if col, ok := r.column(field); ok {
		return col, r.oc.Mapping.FieldsForColumn(col), true
	}
	if col, ok := r.oc.Mapping.Column(field); ok {
		return col, []string{field}, true
	}
	return "", nil, false
}
