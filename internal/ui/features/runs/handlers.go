package runs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/leapdoc/internal/ui/views"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

const defaultLimit = 50

// Handlers provides HTTP handlers for the run history.
type Handlers struct {
	store core.Store
	views *views.Views
	now   func() time.Time
}

// NewHandlers creates a new Handlers instance. A nil store renders an
// empty history.
func NewHandlers(store core.Store, v *views.Views) *Handlers {
	return &Handlers{store: store, views: v, now: time.Now}
}

// RunsPage renders the list of recent runs.
func (h *Handlers) RunsPage(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	var data ListData
	if h.store != nil {
		runs, err := h.store.ListRuns(limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		now := h.now()
		data.Runs = make([]RunItem, len(runs))
		for i, run := range runs {
			data.Runs[i] = toRunItem(run, now)
		}
	}
	h.render(w, views.PageRuns, data)
}

// RunPage renders one run with its rows and recorded issues.
func (h *Handlers) RunPage(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.NotFound(w, r)
		return
	}
	id := chi.URLParam(r, "id")

	run, err := h.store.GetRun(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	rowRuns, err := h.store.GetRowRunsForRun(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	issues, err := h.store.GetIssuesForRun(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := DetailData{Run: toRunItem(run, h.now())}
	for _, rr := range rowRuns {
		data.Rows = append(data.Rows, RowRunItem{
			Number:   rr.Row + 1,
			Status:   string(rr.Status),
			Duration: formatDuration(time.Duration(rr.DurationMS) * time.Millisecond),
			Error:    rr.Error,
		})
	}
	for _, is := range issues {
		data.Issues = append(data.Issues, IssueItem{Number: is.Row + 1, Field: is.Field, Message: is.Message})
	}
	h.render(w, views.PageRun, data)
}

func (h *Handlers) render(w http.ResponseWriter, name string, data any) {
	out, err := h.views.Render(name, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}
