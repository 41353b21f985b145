package session

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Event is a session input.
type Event interface {
	event()
}

// LoadDataset replaces the dataset.
type LoadDataset struct{ Rows int }

// ClearData unloads the dataset.
type ClearData struct{}

// BeginLayout opens layout selection, discarding any current layout.
type BeginLayout struct{}

// ChooseLayout selects a layout strategy.
type ChooseLayout struct {
	Kind            core.LayoutKind
	MappingRequired bool
}

// ConfirmMapping confirms the pending field mapping.
type ConfirmMapping struct{}

// ClearLayout drops the layout and keeps the data.
type ClearLayout struct{}

// SelectRow previews a single row.
type SelectRow struct{ Row int }

// ShowBulk previews every row.
type ShowBulk struct{}

// ToggleGranularity switches between single and bulk preview.
type ToggleGranularity struct{}

// EditCell records a data edit on Row.
type EditCell struct{ Row int }

// CacheFragment stores a generated fragment computed under Epoch.
type CacheFragment struct {
	Epoch    uint64
	Fragment core.Fragment
}

// SetIssues replaces the validation issues computed under Epoch.
type SetIssues struct {
	Epoch  uint64
	Issues []core.ValidationIssue
}

// SetRowIssues replaces the validation issues of Row, computed under Epoch.
// Issues of other rows are kept.
type SetRowIssues struct {
	Epoch  uint64
	Row    int
	Issues []core.ValidationIssue
}

func (LoadDataset) event()       {}
func (ClearData) event()         {}
func (BeginLayout) event()       {}
func (ChooseLayout) event()      {}
func (ConfirmMapping) event()    {}
func (ClearLayout) event()       {}
func (SelectRow) event()         {}
func (ShowBulk) event()          {}
func (ToggleGranularity) event() {}
func (EditCell) event()          {}
func (CacheFragment) event()     {}
func (SetIssues) event()         {}
func (SetRowIssues) event()      {}

func invalid(s State, ev Event) error {
	return fmt.Errorf("%w: %T in %s", core.ErrInvalidTransition, ev, s.Phase)
}

// Transition applies ev to s. On error the returned state is s unchanged.
func Transition(s State, ev Event) (State, error) {
	switch e := ev.(type) {
	case LoadDataset:
		if e.Rows <= 0 {
			return s, fmt.Errorf("%w: dataset has no rows", core.ErrInvalidTransition)
		}
		next := s.reset()
		next.Phase = DataLoaded
		next.Rows = e.Rows
		return next, nil

	case ClearData:
		if !s.HasData() {
			return s, invalid(s, ev)
		}
		next := s.reset()
		next.Phase = NoData
		next.Rows = 0
		return next, nil

	case BeginLayout:
		if !s.HasData() {
			return s, invalid(s, ev)
		}
		next := s.reset()
		next.Phase = LayoutPending
		return next, nil

	case ChooseLayout:
		return chooseLayout(s, e)

	case ConfirmMapping:
		if s.Phase != LayoutPending || s.Layout == core.LayoutNone || !s.MappingRequired {
			return s, invalid(s, ev)
		}
		next := s
		next.MappingConfirmed = true
		next.Phase = PreviewSingle
		next.ActiveRow = 0
		return next, nil

	case ClearLayout:
		switch s.Phase {
		case LayoutPending, PreviewSingle, PreviewBulk:
		default:
			return s, invalid(s, ev)
		}
		next := s.reset()
		next.Phase = DataLoaded
		return next, nil

	case SelectRow:
		switch s.Phase {
		case DataLoaded, PreviewSingle, PreviewBulk:
		default:
			return s, invalid(s, ev)
		}
		if e.Row < 0 || e.Row >= s.Rows {
			return s, fmt.Errorf("%w: row %d of %d", core.ErrRowOutOfRange, e.Row+1, s.Rows)
		}
		next := s
		next.Phase = PreviewSingle
		next.ActiveRow = e.Row
		return next, nil

	case ShowBulk:
		if (s.Phase != PreviewSingle && s.Phase != DataLoaded) || !s.Ready() {
			return s, invalid(s, ev)
		}
		next := s
		next.Phase = PreviewBulk
		return next, nil

	case ToggleGranularity:
		next := s
		switch {
		case s.Phase == PreviewSingle && s.Ready():
			next.Phase = PreviewBulk
		case s.Phase == PreviewBulk:
			next.Phase = PreviewSingle
			if next.ActiveRow == NoRow {
				next.ActiveRow = 0
			}
		default:
			return s, invalid(s, ev)
		}
		return next, nil

	case EditCell:
		if !s.HasData() {
			return s, invalid(s, ev)
		}
		if e.Row < 0 || e.Row >= s.Rows {
			return s, fmt.Errorf("%w: row %d of %d", core.ErrRowOutOfRange, e.Row+1, s.Rows)
		}
		return s.withoutCached(e.Row), nil

	case CacheFragment:
		if e.Epoch != s.Epoch {
			return s, fmt.Errorf("%w: fragment for row %d", core.ErrStaleResult, e.Fragment.Row+1)
		}
		if s.Layout != core.LayoutGenerated || e.Fragment.Layout != core.LayoutGenerated || !e.Fragment.OK() {
			return s, invalid(s, ev)
		}
		if e.Fragment.Row < 0 || e.Fragment.Row >= s.Rows {
			return s, fmt.Errorf("%w: row %d of %d", core.ErrRowOutOfRange, e.Fragment.Row+1, s.Rows)
		}
		return s.withCached(e.Fragment), nil

	case SetIssues:
		if e.Epoch != s.Epoch {
			return s, fmt.Errorf("%w: validation issues", core.ErrStaleResult)
		}
		if !s.HasData() {
			return s, invalid(s, ev)
		}
		next := s
		next.issues = append([]core.ValidationIssue(nil), e.Issues...)
		return next, nil

	case SetRowIssues:
		if e.Epoch != s.Epoch {
			return s, fmt.Errorf("%w: validation issues for row %d", core.ErrStaleResult, e.Row+1)
		}
		if !s.HasData() {
			return s, invalid(s, ev)
		}
		if e.Row < 0 || e.Row >= s.Rows {
			return s, fmt.Errorf("%w: row %d of %d", core.ErrRowOutOfRange, e.Row+1, s.Rows)
		}
		issues := make([]core.ValidationIssue, 0, len(s.issues)+len(e.Issues))
		for _, is := range s.issues {
			if is.Row != e.Row {
				issues = append(issues, is)
			}
		}
		for _, is := range e.Issues {
			is.Row = e.Row
			issues = append(issues, is)
		}
		sort.SliceStable(issues, func(a, b int) bool { return issues[a].Row < issues[b].Row })
		next := s
		next.issues = issues
		return next, nil

	default:
		return s, fmt.Errorf("%w: unknown event %T", core.ErrInvalidTransition, ev)
	}
}

func chooseLayout(s State, e ChooseLayout) (State, error) {
	if s.Phase != LayoutPending && s.Phase != DataLoaded {
		return s, invalid(s, e)
	}
	if e.Kind != core.LayoutTemplate && e.Kind != core.LayoutGenerated {
		return s, fmt.Errorf("%w: unknown layout %q", core.ErrInvalidTransition, e.Kind)
	}

	next := s
	if s.Layout != core.LayoutNone {
		next = s.reset()
	}
	next.Layout = e.Kind
	next.MappingRequired = e.MappingRequired
	next.MappingConfirmed = false
	if e.MappingRequired {
		next.Phase = LayoutPending
		return next, nil
	}
	next.Phase = PreviewSingle
	next.ActiveRow = 0
	return next, nil
}
