// Package runs provides the run history pages of the preview server.
package runs

// RunItem is a run prepared for display.
type RunItem struct {
	ID        string
	ShortID   string
	Kind      string
	Layout    string
	Rows      int
	Status    string
	StartedAt string
	Duration  string
	Error     string
}

// RowRunItem is one row of a run prepared for display.
type RowRunItem struct {
	Number   int
	Status   string
	Duration string
	Error    string
}

// IssueItem is a recorded validation issue prepared for display.
type IssueItem struct {
	Number  int
	Field   string
	Message string
}

// ListData is the data of the run list page.
type ListData struct {
	Runs []RunItem
}

// DetailData is the data of the run detail page.
type DetailData struct {
	Run    RunItem
	Rows   []RowRunItem
	Issues []IssueItem
}
