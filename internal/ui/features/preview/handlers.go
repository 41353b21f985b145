package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/leapstack-labs/leapdoc/internal/analysis"
	"github.com/leapstack-labs/leapdoc/internal/archive"
	"github.com/leapstack-labs/leapdoc/internal/container"
	"github.com/leapstack-labs/leapdoc/internal/credential"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/engine"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/internal/overlay"
	"github.com/leapstack-labs/leapdoc/internal/ui/notifier"
	"github.com/leapstack-labs/leapdoc/internal/ui/views"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/starfederation/datastar-go/datastar"
)

// Session cookie name and keys.
const (
	SessionName   = "leapdoc"
	sessionAPIKey = "api_key"
)

// maxUpload caps uploaded data and template files.
const maxUpload = 32 << 20

// Options configures the preview handlers.
type Options struct {
	Title       string
	ArchiveName string
	Dataset     dataset.Options
}

// Handlers provides HTTP handlers for the preview workspace.
type Handlers struct {
	engine       *engine.Engine
	credential   *credential.Holder
	sessionStore sessions.Store
	notifier     *notifier.Notifier
	views        *views.Views
	logger       *slog.Logger
	opts         Options

	mu        sync.Mutex
	notice    *Notice
	validated bool
	overlay   overlay.Result
	analysis  *analysis.Report
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	eng *engine.Engine,
	cred *credential.Holder,
	sessionStore sessions.Store,
	notify *notifier.Notifier,
	v *views.Views,
	logger *slog.Logger,
	opts Options,
) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Title == "" {
		opts.Title = "Documentos"
	}
	if opts.ArchiveName == "" {
		opts.ArchiveName = "documentos.zip"
	}
	return &Handlers{
		engine:       eng,
		credential:   cred,
		sessionStore: sessionStore,
		notifier:     notify,
		views:        v,
		logger:       logger,
		opts:         opts,
	}
}

// =============================================================================
// Pages
// =============================================================================

// Page renders the workspace with full content.
func (h *Handlers) Page(w http.ResponseWriter, r *http.Request) {
	h.restoreCredential(r)

	out, err := h.views.Render(views.PageIndex, h.buildAppData(r, nil))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, out)
}

// Updates is the long-lived SSE endpoint of the workspace. It pushes the
// whole workspace whenever the notifier fires.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates, cancel := h.notifier.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			var notice *Notice
			if ev.Source != "" {
				notice = &Notice{Level: "info", Message: ev.Source + " recarregado."}
			}
			if err := h.sendApp(sse, r, notice); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

// =============================================================================
// Data and layout
// =============================================================================

// UploadData loads an uploaded CSV or XLSX file.
func (h *Handlers) UploadData(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(r)
	if err == nil {
		var ds *dataset.Dataset
		if ds, err = dataset.Load(name, data, h.opts.Dataset); err == nil {
			err = h.engine.LoadDataset(ds)
		}
	}
	if err != nil {
		h.setNotice("error", fmt.Sprintf("Não foi possível carregar os dados: %v", err))
	} else {
		h.resetDerived()
		h.setNotice("info", fmt.Sprintf("%s carregado.", name))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ClearData unloads the dataset.
func (h *Handlers) ClearData(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	var notice *Notice
	if err := h.engine.ClearData(); err != nil {
		notice = errorNotice(err)
	}
	h.resetDerived()
	h.patch(sse, r, notice)
}

// UploadTemplate selects an uploaded HTML or DOCX template.
func (h *Handlers) UploadTemplate(w http.ResponseWriter, r *http.Request) {
	h.restoreCredential(r)

	name, data, err := readUpload(r)
	if err == nil {
		var c container.Container
		if c, err = container.Open(name, data); err == nil {
			_, err = h.engine.UseTemplate(r.Context(), c)
		}
	}
	if err != nil {
		h.setNotice("error", userMessage(err))
	} else {
		h.resetDerived()
		h.setNotice("info", "Revise o mapeamento e confirme.")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// UseGenerated selects the generated layout.
func (h *Handlers) UseGenerated(w http.ResponseWriter, r *http.Request) {
	var signals LayoutSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.badSignals(w, r, err)
		return
	}
	sse := datastar.NewSSE(w, r)

	if err := h.engine.UseGenerated(signals.Instructions); err != nil {
		h.patch(sse, r, errorNotice(err))
		return
	}
	h.resetDerived()
	h.renderActive(sse, r)
}

// ClearLayout returns to the data-only view.
func (h *Handlers) ClearLayout(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	var notice *Notice
	if err := h.engine.ClearLayout(); err != nil {
		notice = errorNotice(err)
	}
	h.resetDerived()
	h.patch(sse, r, notice)
}

// SetMapping maps one field to a column.
func (h *Handlers) SetMapping(w http.ResponseWriter, r *http.Request) {
	var signals MappingSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.badSignals(w, r, err)
		return
	}
	sse := datastar.NewSSE(w, r)

	var notice *Notice
	if err := h.engine.SetMapping(signals.Field, signals.Column); err != nil {
		notice = errorNotice(err)
	}
	h.patch(sse, r, notice)
}

// ConfirmMapping confirms the mapping and renders the active row.
func (h *Handlers) ConfirmMapping(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	if _, err := h.engine.ConfirmMapping(); err != nil {
		h.patch(sse, r, errorNotice(err))
		return
	}
	h.renderActive(sse, r)
}

// =============================================================================
// Preview
// =============================================================================

// SelectRow makes a row active and renders it.
func (h *Handlers) SelectRow(w http.ResponseWriter, r *http.Request) {
	h.restoreCredential(r)
	sse := datastar.NewSSE(w, r)

	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil {
		h.patch(sse, r, &Notice{Level: "error", Message: "linha inválida"})
		return
	}
	if err := h.engine.SelectRow(row); err != nil {
		h.patch(sse, r, errorNotice(err))
		return
	}
	h.renderActive(sse, r)
}

// ToggleGranularity switches between one document and all documents.
func (h *Handlers) ToggleGranularity(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	if err := h.engine.ToggleGranularity(); err != nil {
		h.patch(sse, r, errorNotice(err))
		return
	}
	if h.engine.State().Granularity() == core.GranularitySingle {
		h.renderActive(sse, r)
		return
	}
	h.patch(sse, r, nil)
}

// RenderAll renders every row, patching each document as it completes.
func (h *Handlers) RenderAll(w http.ResponseWriter, r *http.Request) {
	h.restoreCredential(r)
	sse := datastar.NewSSE(w, r)

	if err := h.engine.ShowBulk(); err != nil {
		h.patch(sse, r, errorNotice(err))
		return
	}
	h.patch(sse, r, &Notice{Level: "info", Message: "Gerando documentos..."})

	res, err := h.engine.RenderAll(r.Context(), func(f core.Fragment) {
		if err := h.patchDocument(sse, toDocument(f)); err != nil {
			h.logger.Debug("document patch failed", "row", f.Row, "error", err)
		}
	})

	notice := &Notice{Level: "info", Message: "Documentos gerados."}
	switch {
	case errors.Is(err, core.ErrServiceAuthOrQuota), errors.Is(err, core.ErrNoCredential):
		notice = errorNotice(err)
	case res != nil && res.Failed > 0:
		notice = &Notice{Level: "warning", Message: fmt.Sprintf("%d documento(s) falharam.", res.Failed)}
	case err != nil:
		notice = errorNotice(err)
	}
	h.patch(sse, r, notice)
}

// EditCell changes one value and re-renders the active row when it was
// the one edited.
func (h *Handlers) EditCell(w http.ResponseWriter, r *http.Request) {
	var signals CellSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.badSignals(w, r, err)
		return
	}
	sse := datastar.NewSSE(w, r)

	if err := h.engine.EditCell(signals.Row, signals.Column, signals.Value); err != nil {
		h.patch(sse, r, errorNotice(err))
		return
	}
	st := h.engine.State()
	if active, ok := st.Active(); ok && active == signals.Row && st.Granularity() == core.GranularitySingle {
		h.renderActive(sse, r)
		return
	}
	h.patch(sse, r, nil)
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks the previewed document: the active row in single view,
// every row otherwise.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	st := h.engine.State()
	if _, ok := st.Active(); ok && st.Granularity() == core.GranularitySingle {
		h.validate(w, r, h.engine.ValidateActive)
		return
	}
	h.validate(w, r, h.engine.Validate)
}

// ValidateAll checks every row regardless of the preview granularity.
func (h *Handlers) ValidateAll(w http.ResponseWriter, r *http.Request) {
	h.validate(w, r, h.engine.Validate)
}

func (h *Handlers) validate(w http.ResponseWriter, r *http.Request, run func(context.Context) ([]core.ValidationIssue, error)) {
	h.restoreCredential(r)
	sse := datastar.NewSSE(w, r)

	_, verr := run(r.Context())
	res, err := h.engine.Overlay()
	if err != nil {
		h.patch(sse, r, errorNotice(err))
		return
	}

	h.mu.Lock()
	h.validated = true
	h.overlay = res
	h.mu.Unlock()

	var notice *Notice
	switch {
	case verr != nil:
		notice = errorNotice(verr)
	case len(res.Unresolved) > 0:
		notice = &Notice{Level: "warning", Message: fmt.Sprintf("%d problema(s) citam campos desconhecidos.", len(res.Unresolved))}
	}
	h.patch(sse, r, notice)
}

// Activate fires an issue hook. The first activation selects the row and
// focuses the offending cell; later ones do nothing.
func (h *Handlers) Activate(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	target, ok := h.engine.Activate(chi.URLParam(r, "hook"))
	if !ok {
		return
	}
	h.patch(sse, r, nil)

	if col, found := columnIndex(h.engine.Columns(), target.Column); found {
		_ = sse.ExecuteScript(fmt.Sprintf("document.getElementById('%s')?.focus()", cellID(target.Row, col)))
	}
}

// Analyze summarises the dataset.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	h.restoreCredential(r)
	sse := datastar.NewSSE(w, r)

	report, err := h.engine.Analyze(r.Context())
	if err != nil {
		h.patch(sse, r, errorNotice(err))
		return
	}
	h.mu.Lock()
	h.analysis = report
	h.mu.Unlock()
	h.patch(sse, r, nil)
}

// =============================================================================
// Credential
// =============================================================================

// SaveCredential installs a new API key and keeps it in the session cookie.
func (h *Handlers) SaveCredential(w http.ResponseWriter, r *http.Request) {
	var signals CredentialSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.badSignals(w, r, err)
		return
	}
	if signals.APIKey == "" {
		sse := datastar.NewSSE(w, r)
		h.patch(sse, r, &Notice{Level: "error", Message: "Informe a chave de API."})
		return
	}

	h.credential.Set(signals.APIKey)
	if session, err := h.sessionStore.Get(r, SessionName); err == nil {
		session.Values[sessionAPIKey] = signals.APIKey
		if err := session.Save(r, w); err != nil {
			h.logger.Warn("failed to save session", "error", err)
		}
	}

	sse := datastar.NewSSE(w, r)
	h.patch(sse, r, &Notice{Level: "info", Message: "Chave salva."})
}

// RemoveCredential drops the API key from the holder and the session.
func (h *Handlers) RemoveCredential(w http.ResponseWriter, r *http.Request) {
	h.credential.Invalidate(errors.New("removed by user"))
	if session, err := h.sessionStore.Get(r, SessionName); err == nil {
		delete(session.Values, sessionAPIKey)
		_ = session.Save(r, w)
	}

	sse := datastar.NewSSE(w, r)
	h.patch(sse, r, nil)
}

// restoreCredential installs the session's key when the holder has none.
// A key that was rejected stays rejected until the user supplies another.
func (h *Handlers) restoreCredential(r *http.Request) {
	if h.credential.LastError() != nil || h.credential.Available(r.Context()) {
		return
	}
	session, err := h.sessionStore.Get(r, SessionName)
	if err != nil {
		return
	}
	if key, ok := session.Values[sessionAPIKey].(string); ok && key != "" {
		h.credential.Set(key)
	}
}

// =============================================================================
// Export
// =============================================================================

// ExportArchive downloads every document as a zip archive.
func (h *Handlers) ExportArchive(w http.ResponseWriter, r *http.Request) {
	h.restoreCredential(r)

	res, err := h.engine.Export(r.Context())
	if res == nil || len(res.Entries) == 0 {
		if err == nil {
			err = errors.New("nenhum documento gerado")
		}
		http.Error(w, userMessage(err), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		h.logger.Warn("export incomplete", "failed", len(res.Failed), "error", err)
	}

	data, err := archive.Build(res.Entries)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.opts.ArchiveName))
	_, _ = w.Write(data)
}

// ExportDataset downloads the edited dataset as CSV or XLSX.
func (h *Handlers) ExportDataset(w http.ResponseWriter, r *http.Request) {
	ds := h.engine.Dataset()
	if ds == nil {
		http.Error(w, "nenhum dado carregado", http.StatusNotFound)
		return
	}

	switch r.URL.Query().Get("format") {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="dados_editados.xlsx"`)
		if err := dataset.WriteXLSX(w, ds, h.opts.Dataset); err != nil {
			h.logger.Error("failed to write xlsx", "error", err)
		}
	default:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="dados_editados.csv"`)
		if err := dataset.WriteCSV(w, ds, h.opts.Dataset); err != nil {
			h.logger.Error("failed to write csv", "error", err)
		}
	}
}

// =============================================================================
// Helpers
// =============================================================================

// renderActive renders the active row, if any, and patches the workspace.
func (h *Handlers) renderActive(sse *datastar.ServerSentEventGenerator, r *http.Request) {
	var notice *Notice
	var rendered []core.Fragment
	if _, ok := h.engine.State().Active(); ok {
		f, err := h.engine.RenderActive(r.Context())
		if err != nil {
			notice = errorNotice(err)
		} else {
			rendered = append(rendered, f)
		}
	}
	h.patch(sse, r, notice, rendered...)
}

func (h *Handlers) patch(sse *datastar.ServerSentEventGenerator, r *http.Request, notice *Notice, rendered ...core.Fragment) {
	if err := h.sendApp(sse, r, notice, rendered...); err != nil {
		_ = sse.ConsoleError(err)
	}
}

func (h *Handlers) sendApp(sse *datastar.ServerSentEventGenerator, r *http.Request, notice *Notice, rendered ...core.Fragment) error {
	out, err := h.views.Render(views.PartialApp, h.buildAppData(r, notice, rendered...))
	if err != nil {
		return err
	}
	return sse.PatchElements(out)
}

func (h *Handlers) patchDocument(sse *datastar.ServerSentEventGenerator, doc Document) error {
	out, err := h.views.Render(views.PartialDoc, doc)
	if err != nil {
		return err
	}
	return sse.PatchElements(out)
}

func (h *Handlers) badSignals(w http.ResponseWriter, r *http.Request, err error) {
	sse := datastar.NewSSE(w, r)
	h.patch(sse, r, &Notice{Level: "error", Message: "Falha ao ler os sinais: " + err.Error()})
}

func (h *Handlers) setNotice(level, message string) {
	h.mu.Lock()
	h.notice = &Notice{Level: level, Message: message}
	h.mu.Unlock()
}

// resetDerived drops results tied to the previous data or layout.
func (h *Handlers) resetDerived() {
	h.mu.Lock()
	h.validated = false
	h.overlay = overlay.Result{}
	h.analysis = nil
	h.mu.Unlock()
}

func readUpload(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return "", nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUpload))
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

func errorNotice(err error) *Notice {
	level := "error"
	if errors.Is(err, core.ErrStaleResult) {
		level = "warning"
	}
	return &Notice{Level: level, Message: userMessage(err)}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrMappingIncomplete):
		return "Mapeie todos os campos antes de confirmar."
	case errors.Is(err, core.ErrContainerCorrupt), errors.Is(err, core.ErrTemplateUnreadable):
		return "Não foi possível ler o modelo."
	case errors.Is(err, core.ErrInvalidTransition):
		return "Ação indisponível neste momento."
	case errors.Is(err, core.ErrStaleResult):
		return "Os dados mudaram durante a operação; tente novamente."
	default:
		return genai.UserMessage(err)
	}
}
