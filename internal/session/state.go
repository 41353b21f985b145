// Package session models the preview session as one owned value updated
// by a pure transition function.
//
// Transition never mutates its input. The fragment cache is copied on write,
// so a State held by a caller stays valid after later transitions. Every
// transition that discards derived state (layout, mapping, cache, overlay)
// bumps Epoch; results computed against an older epoch are stale.
package session

import (
	"maps"
	"slices"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Phase is the coarse session state.
type Phase int

// Session phases.
const (
	NoData Phase = iota
	DataLoaded
	LayoutPending
	PreviewSingle
	PreviewBulk
)

var phaseNames = [...]string{
	NoData:        "no_data",
	DataLoaded:    "data_loaded",
	LayoutPending: "layout_pending",
	PreviewSingle: "preview_single",
	PreviewBulk:   "preview_bulk",
}

// String returns the phase name.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// NoRow marks the absence of an active row.
const NoRow = -1

// State is the preview session.
type State struct {
	Phase  Phase
	Rows   int
	Layout core.LayoutKind
	// MappingRequired is set for layouts that need a confirmed mapping.
	MappingRequired  bool
	MappingConfirmed bool
	ActiveRow        int
	Epoch            uint64

	cache  map[int]core.Fragment
	issues []core.ValidationIssue
}

// Initial returns the empty session.
func Initial() State {
	return State{Phase: NoData, ActiveRow: NoRow}
}

// Granularity reports the preview granularity.
func (s State) Granularity() core.Granularity {
	switch s.Phase {
	case PreviewSingle:
		return core.GranularitySingle
	case PreviewBulk:
		return core.GranularityBulk
	default:
		return core.GranularityNone
	}
}

// Active returns the active row.
func (s State) Active() (int, bool) {
	return s.ActiveRow, s.ActiveRow != NoRow
}

// HasData reports whether a dataset is loaded.
func (s State) HasData() bool {
	return s.Phase != NoData
}

// Ready reports whether the layout can render: chosen and, if required,
// mapped.
func (s State) Ready() bool {
	return s.Layout != core.LayoutNone && (!s.MappingRequired || s.MappingConfirmed)
}

// Cached returns the cached generated fragment for row at revision.
func (s State) Cached(row int, revision uint64) (core.Fragment, bool) {
	f, ok := s.cache[row]
	if !ok || f.Revision != revision {
		return core.Fragment{}, false
	}
	return f, true
}

// CacheSize returns the number of cached fragments.
func (s State) CacheSize() int {
	return len(s.cache)
}

// Issues returns the current validation issues.
func (s State) Issues() []core.ValidationIssue {
	return slices.Clone(s.issues)
}

// reset drops everything derived from the layout.
func (s State) reset() State {
	s.Layout = core.LayoutNone
	s.MappingRequired = false
	s.MappingConfirmed = false
	s.ActiveRow = NoRow
	s.cache = nil
	s.issues = nil
	s.Epoch++
	return s
}

func (s State) withoutCached(row int) State {
	if _, ok := s.cache[row]; !ok {
		return s
	}
	c := maps.Clone(s.cache)
	delete(c, row)
	s.cache = c
	return s
}

func (s State) withCached(f core.Fragment) State {
	c := make(map[int]core.Fragment, len(s.cache)+1)
	maps.Copy(c, s.cache)
	c[f.Row] = f
	s.cache = c
	return s
}
