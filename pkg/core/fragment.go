package core

import "strings"

// =============================================================================
// Layout
// =============================================================================

// LayoutKind identifies the active rendering strategy.
type LayoutKind string

// Layout kinds.
const (
	LayoutNone      LayoutKind = ""
	LayoutTemplate  LayoutKind = "template"
	LayoutGenerated LayoutKind = "generated"
)

// String returns the string representation of the layout kind.
func (k LayoutKind) String() string {
	if k == LayoutNone {
		return "none"
	}
	return string(k)
}

// ParseLayoutKind converts a string to a LayoutKind.
func ParseLayoutKind(s string) (LayoutKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "template", "docx", "html":
		return LayoutTemplate, true
	case "generated", "ai", "gemini":
		return LayoutGenerated, true
	case "", "none":
		return LayoutNone, true
	default:
		return LayoutNone, false
	}
}

// Granularity is the preview mode: one row or all rows.
type Granularity string

// Granularity values.
const (
	GranularityNone   Granularity = ""
	GranularitySingle Granularity = "single"
	GranularityBulk   Granularity = "bulk"
)

// =============================================================================
// Fragment
// =============================================================================

// FragmentStatus reports how a fragment was produced.
type FragmentStatus string

// Fragment status constants.
const (
	FragmentOK      FragmentStatus = "ok"
	FragmentError   FragmentStatus = "error"
	FragmentSkipped FragmentStatus = "skipped"
)

// Fragment is the rendered markup for one row. Every data value embedded in
// Markup is wrapped in a field marker naming the logical field it came from.
type Fragment struct {
	Row    int
	Layout LayoutKind
	Markup string
	// Fields lists marker keys in document order.
	Fields []string
	Status FragmentStatus
	// Revision is the row revision the fragment was rendered from.
	Revision uint64
	Err      error
}

// OK reports whether the fragment rendered successfully.
func (f Fragment) OK() bool {
	return f.Status == FragmentOK
}

// ErrorMessage returns the failure message, or "" for successful fragments.
func (f Fragment) ErrorMessage() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// =============================================================================
// Validation
// =============================================================================

// ValidationIssue is one problem reported for a row and logical field.
type ValidationIssue struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"issue"`
}
