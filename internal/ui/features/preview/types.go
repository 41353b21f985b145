// Package preview provides the interactive document preview: the data
// grid, the field mapping, rendered documents and the validation overlay.
package preview

import "github.com/leapstack-labs/leapdoc/internal/analysis"

// Notice is a transient message shown above the workspace.
type Notice struct {
	Level   string
	Message string
}

// Cell is one grid cell.
type Cell struct {
	Column string
	Slug   string
	Value  string
	Issue  string
}

// Row is one grid row.
type Row struct {
	Index  int
	Number int
	Active bool
	Cells  []Cell
}

// MappingItem is one field of the mapping table.
type MappingItem struct {
	Field  string
	Column string
}

// Document is a rendered fragment prepared for display.
type Document struct {
	Row    int
	Number int
	Status string
	Markup string
}

// IssueItem is an issue with the hook that locates it.
type IssueItem struct {
	Number  int
	Field   string
	Message string
	Hook    string
}

// AppData is everything the workspace template needs.
type AppData struct {
	Title            string
	Phase            string
	Notice           *Notice
	Credential       bool
	CredentialError  string
	HasData          bool
	RowCount         int
	Columns          []string
	Rows             []Row
	Layout           string
	Granularity      string
	Instructions     string
	Ready            bool
	Mapping          []MappingItem
	MappingConfirmed bool
	Documents        []Document
	Validated        bool
	Clean            bool
	Issues           []IssueItem
	Analysis         *analysis.Report
}

// CellSignals carries a grid edit.
type CellSignals struct {
	Row    int    `json:"cellRow"`
	Column string `json:"cellColumn"`
	Value  string `json:"cellValue"`
}

// MappingSignals carries a mapping change.
type MappingSignals struct {
	Field  string `json:"field"`
	Column string `json:"column"`
}

// LayoutSignals carries the generated layout instructions.
type LayoutSignals struct {
	Instructions string `json:"instructions"`
}

// CredentialSignals carries a new API key.
type CredentialSignals struct {
	APIKey string `json:"apiKey"`
}
