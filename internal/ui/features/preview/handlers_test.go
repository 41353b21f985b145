package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdoc/internal/container"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/internal/testutil"
	"github.com/leapstack-labs/leapdoc/internal/ui/features"
	"github.com/leapstack-labs/leapdoc/internal/ui/notifier"
	"github.com/leapstack-labs/leapdoc/internal/validation"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// =============================================================================
// Test Setup Helpers
// =============================================================================

func setupTestHandlers(t *testing.T, gen genai.Generator) (*Handlers, *features.TestFixture, http.Handler) {
	t.Helper()

	fixture := features.SetupTestFixture(t, gen)
	h := NewHandlers(
		fixture.Engine,
		fixture.Credential,
		fixture.SessionStore,
		fixture.Notifier,
		fixture.Views,
		testutil.NewTestLogger(t),
		Options{Dataset: dataset.Options{Delimiter: ';'}},
	)

	r := chi.NewRouter()
	require.NoError(t, SetupRoutes(r, h))
	return h, fixture, r
}

func useTemplate(t *testing.T, fixture *features.TestFixture) {
	t.Helper()
	c := container.NewHTML("carta.html", []byte(features.TestTemplate))
	_, err := fixture.Engine.UseTemplate(context.Background(), c)
	require.NoError(t, err)
	_, err = fixture.Engine.ConfirmMapping()
	require.NoError(t, err)
}

func do(t *testing.T, router http.Handler, method, path string, signals any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if signals != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(signals))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, router http.Handler, path, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Page
// =============================================================================

func TestPage(t *testing.T) {
	_, _, router := setupTestHandlers(t, nil)

	rec := do(t, router, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, want := range []string{
		"<!doctype html>",
		"<title>Documentos - LeapDoc</title>",
		"/api/updates",
		`value="Ana"`,
		`value="sem-arroba"`,
		`data-phase="data_loaded"`,
	} {
		assert.Contains(t, body, want)
	}
	assert.NotContains(t, body, "Gerar todos", "actions need a ready layout")
}

// =============================================================================
// Data and layout
// =============================================================================

func TestUploadData(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)

	rec := upload(t, router, "/api/data", "novos.csv", []byte("Cidade;UF\nRecife;PE\n"))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []string{"Cidade", "UF"}, fixture.Engine.Columns())

	page := do(t, router, http.MethodGet, "/", nil).Body.String()
	assert.Contains(t, page, "novos.csv carregado.")
	assert.NotContains(t, do(t, router, http.MethodGet, "/", nil).Body.String(), "novos.csv carregado.", "notice shows once")
}

func TestUploadTemplate(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)

	rec := upload(t, router, "/api/template", "carta.html", []byte(features.TestTemplate))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	st := fixture.Engine.State()
	assert.Equal(t, core.LayoutTemplate, st.Layout)
	assert.False(t, st.MappingConfirmed)

	page := do(t, router, http.MethodGet, "/", nil).Body.String()
	assert.Contains(t, page, "/api/mapping/confirm")
}

func TestConfirmMapping(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)
	c := container.NewHTML("carta.html", []byte(features.TestTemplate))
	_, err := fixture.Engine.UseTemplate(context.Background(), c)
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/api/mapping", MappingSignals{Field: "Email", Column: ""})
	assert.Contains(t, rec.Body.String(), "datastar-patch-elements")

	rec = do(t, router, http.MethodPost, "/api/mapping/confirm", nil)
	assert.Contains(t, rec.Body.String(), "Mapeie todos os campos")
	assert.False(t, fixture.Engine.State().MappingConfirmed)

	do(t, router, http.MethodPost, "/api/mapping", MappingSignals{Field: "Email", Column: "Email"})
	do(t, router, http.MethodPost, "/api/mapping/confirm", nil)
	assert.True(t, fixture.Engine.State().Ready())
}

// =============================================================================
// Preview
// =============================================================================

func TestSelectRow(t *testing.T) {
	tests := []struct {
		name     string
		template bool
		path     string
		wantBody []string
		wantRow  int
	}{
		{
			name:     "plain preview without layout",
			path:     "/api/rows/1/select",
			wantBody: []string{"datastar-patch-elements", `id="doc-1"`, "Beto"},
			wantRow:  1,
		},
		{
			name:     "template preview carries markers",
			template: true,
			path:     "/api/rows/0/select",
			wantBody: []string{`data-field="Nome"`, "Ana"},
			wantRow:  0,
		},
		{
			name:     "out of range row",
			path:     "/api/rows/9/select",
			wantBody: []string{"notice-error"},
			wantRow:  -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, fixture, router := setupTestHandlers(t, nil)
			if tt.template {
				useTemplate(t, fixture)
			}

			rec := do(t, router, http.MethodPost, tt.path, nil)

			body := rec.Body.String()
			for _, want := range tt.wantBody {
				assert.Contains(t, body, want)
			}
			row, ok := fixture.Engine.State().Active()
			if tt.wantRow < 0 {
				assert.False(t, ok)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tt.wantRow, row)
		})
	}
}

func TestRenderAll_Generated(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, features.EchoGenerator())

	do(t, router, http.MethodPost, "/api/layout/generated", LayoutSignals{Instructions: "carta formal"})
	assert.Equal(t, core.LayoutGenerated, fixture.Engine.State().Layout)
	assert.Equal(t, "carta formal", fixture.Engine.Instructions())

	rec := do(t, router, http.MethodPost, "/api/bulk", nil)

	body := rec.Body.String()
	for _, want := range []string{`id="doc-0"`, `id="doc-2"`, "Caio", "Documentos gerados."} {
		assert.Contains(t, body, want)
	}
	assert.Equal(t, core.GranularityBulk, fixture.Engine.State().Granularity())
	assert.Len(t, fixture.Engine.Fragments(), 3)
}

func TestRenderAll_NoCredential(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)
	require.NoError(t, fixture.Engine.UseGenerated(""))

	rec := do(t, router, http.MethodPost, "/api/bulk", nil)

	assert.Contains(t, rec.Body.String(), "Nenhuma chave de API configurada.")
}

func TestEditCell(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)
	useTemplate(t, fixture)
	require.NoError(t, fixture.Engine.SelectRow(0))

	rec := do(t, router, http.MethodPost, "/api/cells", CellSignals{Row: 0, Column: "Nome", Value: "Ana Maria"})

	assert.Contains(t, rec.Body.String(), "Ana Maria")
	v, err := fixture.Engine.Dataset().Value(0, "Nome")
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", v)

	rec = do(t, router, http.MethodPost, "/api/cells", CellSignals{Row: 0, Column: "Cidade", Value: "x"})
	assert.Contains(t, rec.Body.String(), "notice-error")
}

func TestToggleGranularity(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)
	useTemplate(t, fixture)
	require.NoError(t, fixture.Engine.SelectRow(0))

	do(t, router, http.MethodPost, "/api/granularity", nil)
	assert.Equal(t, core.GranularityBulk, fixture.Engine.State().Granularity())

	rec := do(t, router, http.MethodPost, "/api/granularity", nil)
	assert.Equal(t, core.GranularitySingle, fixture.Engine.State().Granularity())
	assert.Equal(t, core.LayoutTemplate, fixture.Engine.State().Layout, "toggling keeps the layout")
	assert.Contains(t, rec.Body.String(), `id="doc-0"`)
}

// =============================================================================
// Validation
// =============================================================================

func TestValidateAndActivate(t *testing.T) {
	h, fixture, router := setupTestHandlers(t, nil)
	useTemplate(t, fixture)
	rv, err := validation.NewRuleValidator([]validation.Rule{
		{Field: "Email", Expr: "isEmail(value)", Message: "Email inválido"},
	}, features.TestColumns)
	require.NoError(t, err)
	fixture.Engine.SetValidator(rv)
	_, err = fixture.Engine.RenderAll(context.Background(), nil)
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/api/validate/all", nil)

	body := rec.Body.String()
	assert.Contains(t, body, "cell-invalid")
	assert.Contains(t, body, "Email inválido")
	require.Len(t, h.overlay.Highlights, 1)
	hl := h.overlay.Highlights[0]
	assert.Equal(t, 1, hl.Row)

	rec = do(t, router, http.MethodPost, "/api/hooks/"+hl.Hook, nil)
	assert.Contains(t, rec.Body.String(), "cell-1-1")
	row, ok := fixture.Engine.State().Active()
	assert.True(t, ok)
	assert.Equal(t, 1, row)

	rec = do(t, router, http.MethodPost, "/api/hooks/"+hl.Hook, nil)
	assert.Empty(t, strings.TrimSpace(rec.Body.String()), "hooks fire once")
}

type validatorFunc func(ctx context.Context, row dataset.Row) ([]core.ValidationIssue, error)

func (f validatorFunc) Validate(ctx context.Context, row dataset.Row) ([]core.ValidationIssue, error) {
	return f(ctx, row)
}

func TestValidate_ActiveRow(t *testing.T) {
	h, fixture, router := setupTestHandlers(t, nil)
	useTemplate(t, fixture)
	var calls atomic.Int32
	fixture.Engine.SetValidator(validatorFunc(func(_ context.Context, row dataset.Row) ([]core.ValidationIssue, error) {
		calls.Add(1)
		if !strings.Contains(row.Get("Email"), "@") {
			return []core.ValidationIssue{{Field: "Email", Message: "Email inválido"}}, nil
		}
		return nil, nil
	}))

	rec := do(t, router, http.MethodPost, "/api/validate", nil)
	assert.Equal(t, int32(1), calls.Load(), "single view validates the active row only")
	assert.Contains(t, rec.Body.String(), "Nenhum problema encontrado.")

	do(t, router, http.MethodPost, "/api/rows/1/select", nil)
	rec = do(t, router, http.MethodPost, "/api/validate", nil)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, rec.Body.String(), "Email inválido")
	require.Len(t, h.overlay.Highlights, 1)
	assert.Equal(t, 1, h.overlay.Highlights[0].Row)

	do(t, router, http.MethodPost, "/api/validate/all", nil)
	assert.Equal(t, int32(5), calls.Load(), "bulk validation checks every row")
}

func TestValidate_Clean(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)
	rv, err := validation.NewRuleValidator([]validation.Rule{
		{Field: "Nome", Expr: "!empty(value)"},
	}, features.TestColumns)
	require.NoError(t, err)
	fixture.Engine.SetValidator(rv)

	rec := do(t, router, http.MethodPost, "/api/validate", nil)

	assert.Contains(t, rec.Body.String(), "Nenhum problema encontrado.")
}

// =============================================================================
// Credential
// =============================================================================

func TestSaveCredential(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)
	assert.False(t, fixture.Credential.Available(context.Background()))

	rec := do(t, router, http.MethodPost, "/api/credential", CredentialSignals{APIKey: ""})
	assert.Contains(t, rec.Body.String(), "Informe a chave de API.")

	rec = do(t, router, http.MethodPost, "/api/credential", CredentialSignals{APIKey: "nova-chave"})

	assert.Contains(t, rec.Header().Get("Set-Cookie"), SessionName+"=")
	assert.Contains(t, rec.Body.String(), "Chave salva.")
}

func TestRemoveCredential(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, features.EchoGenerator())
	assert.True(t, fixture.Credential.Available(context.Background()))

	do(t, router, http.MethodDelete, "/api/credential", nil)

	assert.False(t, fixture.Credential.Available(context.Background()))
}

// =============================================================================
// Export
// =============================================================================

func TestExportArchive(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)
	useTemplate(t, fixture)

	rec := do(t, router, http.MethodGet, "/export", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "documentos.zip")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestExportArchive_NoLayout(t *testing.T) {
	_, _, router := setupTestHandlers(t, nil)

	rec := do(t, router, http.MethodGet, "/export", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestExportDataset(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)
	require.NoError(t, fixture.Engine.EditCell(1, "Email", "b@x.com"))

	rec := do(t, router, http.MethodGet, "/export/dataset?format=csv", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "dados_editados.csv")
	assert.Contains(t, rec.Body.String(), "Nome;Email")
	assert.Contains(t, rec.Body.String(), "Beto;b@x.com")
}

// lockedRecorder lets the test read the body while an SSE handler writes.
type lockedRecorder struct {
	mu  sync.Mutex
	rec *httptest.ResponseRecorder
}

func (l *lockedRecorder) Header() http.Header { return l.rec.Header() }

func (l *lockedRecorder) WriteHeader(code int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rec.WriteHeader(code)
}

func (l *lockedRecorder) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rec.Write(b)
}

func (l *lockedRecorder) Flush() {}

func (l *lockedRecorder) body() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rec.Body.String()
}

func TestUpdates_PushesOnNotify(t *testing.T) {
	_, fixture, router := setupTestHandlers(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/updates", nil).WithContext(ctx)
	rec := &lockedRecorder{rec: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return fixture.Notifier.Len() == 1 }, time.Second, 5*time.Millisecond)
	fixture.Notifier.Broadcast(notifier.Event{Source: "clientes.csv"})
	require.Eventually(t, func() bool {
		return strings.Contains(rec.body(), "clientes.csv recarregado.")
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 0, fixture.Notifier.Len())
}
