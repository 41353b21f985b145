package preview

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/internal/markup"
	"github.com/leapstack-labs/leapdoc/internal/overlay"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// buildAppData snapshots the engine and the handler state for rendering.
// A pending notice set by a redirecting handler is shown once. rendered
// carries fragments the engine does not keep, such as plain previews.
func (h *Handlers) buildAppData(r *http.Request, notice *Notice, rendered ...core.Fragment) AppData {
	st := h.engine.State()

	h.mu.Lock()
	if notice == nil {
		notice = h.notice
	}
	h.notice = nil
	validated, ov, report := h.validated, h.overlay, h.analysis
	h.mu.Unlock()

	data := AppData{
		Title:        h.opts.Title,
		Phase:        st.Phase.String(),
		Notice:       notice,
		Credential:   h.credential.Available(r.Context()),
		HasData:      st.HasData(),
		Layout:       string(st.Layout),
		Granularity:  string(st.Granularity()),
		Instructions: h.engine.Instructions(),
		Ready:        st.Ready(),
		Validated:    validated,
		Clean:        ov.Clean,
		Analysis:     report,
	}
	if !data.Credential {
		if err := h.credential.LastError(); err != nil {
			data.CredentialError = genai.UserMessage(err)
		}
	}

	ds := h.engine.Dataset()
	if ds == nil {
		return data
	}
	data.Columns = ds.Columns()
	data.RowCount = ds.Len()

	issues := make(map[string]string, len(ov.Cells))
	for _, c := range ov.Cells {
		issues[cellKey(c.Row, c.Column)] = c.Message
	}
	active, hasActive := st.Active()
	for _, row := range ds.Rows() {
		gr := Row{Index: row.Index, Number: row.Index + 1, Active: hasActive && active == row.Index}
		for ci, col := range data.Columns {
			gr.Cells = append(gr.Cells, Cell{
				Column: col,
				Slug:   strconv.Itoa(ci),
				Value:  row.Get(col),
				Issue:  issues[cellKey(row.Index, col)],
			})
		}
		data.Rows = append(data.Rows, gr)
	}

	if m := h.engine.Mapping(); m != nil && st.Layout == core.LayoutTemplate {
		for _, f := range m.Fields() {
			col, _ := m.Column(f)
			data.Mapping = append(data.Mapping, MappingItem{Field: f, Column: col})
		}
		data.MappingConfirmed = st.MappingConfirmed
	}

	for _, hl := range ov.Highlights {
		data.Issues = append(data.Issues, IssueItem{
			Number:  hl.Row + 1,
			Field:   hl.Field,
			Message: highlightMessage(ov.Cells, hl.Row, hl.Field),
			Hook:    hl.Hook,
		})
	}

	data.Documents = h.documents(st.Granularity(), active, hasActive, ds.Len(), rendered)
	return data
}

// documents lists what the preview pane shows: the active row in single
// mode, every row in bulk mode. Rows not rendered yet get a placeholder
// that later patches replace by id.
func (h *Handlers) documents(g core.Granularity, active int, hasActive bool, rows int, rendered []core.Fragment) []Document {
	byRow := make(map[int]core.Fragment)
	for _, f := range rendered {
		byRow[f.Row] = f
	}
	for _, f := range h.engine.Fragments() {
		byRow[f.Row] = f
	}
	doc := func(row int) Document {
		if f, ok := byRow[row]; ok {
			return toDocument(f)
		}
		return Document{Row: row, Number: row + 1, Status: "pending", Markup: `<p class="muted">Aguardando geração.</p>`}
	}

	switch {
	case g == core.GranularityBulk:
		docs := make([]Document, rows)
		for i := range rows {
			docs[i] = doc(i)
		}
		return docs
	case hasActive:
		return []Document{doc(active)}
	default:
		return nil
	}
}

func toDocument(f core.Fragment) Document {
	d := Document{Row: f.Row, Number: f.Row + 1, Status: string(f.Status), Markup: f.Markup}
	if d.Markup == "" && f.Err != nil {
		d.Markup = markup.ErrorNotice(f.Row, genai.UserMessage(f.Err))
	}
	return d
}

func highlightMessage(cells []overlay.Cell, row int, field string) string {
	for _, c := range cells {
		if c.Row == row && c.Column == field {
			return c.Message
		}
	}
	for _, c := range cells {
		if c.Row == row {
			return c.Message
		}
	}
	return ""
}

func cellKey(row int, column string) string {
	return fmt.Sprintf("%d\x00%s", row, column)
}

func cellID(row, col int) string {
	return fmt.Sprintf("cell-%d-%d", row, col)
}

func columnIndex(columns []string, name string) (int, bool) {
	for i, c := range columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}
