package runs

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdoc/internal/ui/features"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

func seedRun(t *testing.T, f *features.TestFixture) *core.Run {
	t.Helper()

	run, err := f.Store.CreateRun(core.RunKindValidate, core.LayoutTemplate, 2)
	require.NoError(t, err)
	require.NoError(t, f.Store.RecordRowRun(&core.RowRun{RunID: run.ID, Row: 0, Status: core.RowRunStatusSuccess, DurationMS: 12}))
	require.NoError(t, f.Store.RecordRowRun(&core.RowRun{RunID: run.ID, Row: 1, Status: core.RowRunStatusFailed, Error: "sem resposta"}))
	require.NoError(t, f.Store.SaveIssues(run.ID, []core.ValidationIssue{{Row: 1, Field: "Email", Message: "e-mail inválido"}}))
	require.NoError(t, f.Store.CompleteRun(run.ID, core.RunStatusFailed, "1 documento falhou"))
	return run
}

func TestRunsPage(t *testing.T) {
	f := features.SetupTestFixture(t, nil)
	run := seedRun(t, f)
	h := NewHandlers(f.Store, f.Views)

	rec := httptest.NewRecorder()
	h.RunsPage(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), truncateID(run.ID))
	assert.Contains(t, rec.Body.String(), "validate")
}

func TestRunsPage_NilStore(t *testing.T) {
	f := features.SetupTestFixture(t, nil)
	h := NewHandlers(nil, f.Views)

	rec := httptest.NewRecorder()
	h.RunsPage(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nenhuma execução registrada.")
}

func TestRunPage(t *testing.T) {
	f := features.SetupTestFixture(t, nil)
	run := seedRun(t, f)
	h := NewHandlers(f.Store, f.Views)

	req := features.RequestWithPathParam(httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil), "id", run.ID)
	rec := httptest.NewRecorder()
	h.RunPage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "1 documento falhou")
	assert.Contains(t, body, "sem resposta")
	assert.Contains(t, body, "Documento 2: Email e-mail inválido")
	assert.Contains(t, body, "12ms")
}

func TestRunPage_NotFound(t *testing.T) {
	f := features.SetupTestFixture(t, nil)
	h := NewHandlers(f.Store, f.Views)

	req := features.RequestWithPathParam(httptest.NewRequest(http.MethodGet, "/runs/nope", nil), "id", "nope")
	rec := httptest.NewRecorder()
	h.RunPage(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFormatHelpers(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "agora", formatTimeAgo(now.Add(-10*time.Second), now))
	assert.Equal(t, "há 5 min", formatTimeAgo(now.Add(-5*time.Minute), now))
	assert.Equal(t, "há 3 h", formatTimeAgo(now.Add(-3*time.Hour), now))

	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m05s", formatDuration(125*time.Second))

	done := now.Add(-time.Minute)
	assert.Equal(t, "1m00s", formatRunDuration(now.Add(-2*time.Minute), &done, now))
	assert.Equal(t, "abcdefgh", truncateID("abcdefghijkl"))
}
