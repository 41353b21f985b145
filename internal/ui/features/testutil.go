// Package features provides shared test utilities for UI feature tests.
package features

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdoc/internal/credential"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/engine"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/internal/mapping"
	"github.com/leapstack-labs/leapdoc/internal/state"
	"github.com/leapstack-labs/leapdoc/internal/testutil"
	"github.com/leapstack-labs/leapdoc/internal/ui/notifier"
	"github.com/leapstack-labs/leapdoc/internal/ui/views"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// TestColumns and TestRecords are the fixture dataset.
var (
	TestColumns = []string{"Nome", "Email"}
	TestRecords = [][]string{
		{"Ana", "a@x.com"},
		{"Beto", "sem-arroba"},
		{"Caio", "c@x.com"},
	}
)

// TestTemplate is an HTML template using both fixture columns.
const TestTemplate = `<p>Olá {Nome}, seu e-mail é {Email}.</p>`

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Store        *state.SQLiteStore
	Engine       *engine.Engine
	Credential   *credential.Holder
	Notifier     *notifier.Notifier
	SessionStore *sessions.CookieStore
	Views        *views.Views
}

// SetupTestFixture creates an engine with the fixture dataset loaded, an
// in-memory run history and a credential whose generator is gen. A nil gen
// leaves the credential empty.
func SetupTestFixture(t *testing.T, gen genai.Generator) *TestFixture {
	t.Helper()

	logger := testutil.NewTestLogger(t)

	store := state.NewSQLiteStore(logger)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })

	var source credential.Source
	if gen != nil {
		source = credential.Static("test-key")
	}
	holder := credential.NewHolder(source, func(context.Context, string) (genai.Generator, error) {
		if gen == nil {
			return nil, core.ErrNoCredential
		}
		return gen, nil
	}, logger)

	eng, err := engine.New(engine.Config{
		Generator:  holder,
		Suggester:  mapping.HeuristicSuggester{},
		Store:      store,
		Spacing:    -1,
		NameColumn: "Nome",
		Logger:     logger,
	})
	require.NoError(t, err)

	ds, err := dataset.New(TestColumns, TestRecords)
	require.NoError(t, err)
	require.NoError(t, eng.LoadDataset(ds))

	v, err := views.New()
	require.NoError(t, err)

	return &TestFixture{
		Store:        store,
		Engine:       eng,
		Credential:   holder,
		Notifier:     notifier.New(),
		SessionStore: NewTestSessionStore(),
		Views:        v,
	}
}

// EchoGenerator lays out every column of the prompt's record as a marked
// paragraph.
func EchoGenerator() genai.Generator {
	return genai.GeneratorFunc(func(_ context.Context, req genai.Request) (*genai.Response, error) {
		var sb strings.Builder
		_, record, _ := strings.Cut(req.Prompt, "Registro:")
		for _, line := range strings.Split(record, "\n") {
			if !strings.HasPrefix(line, "- ") {
				continue
			}
			col, val, ok := strings.Cut(strings.TrimPrefix(line, "- "), ": ")
			if !ok {
				continue
			}
			sb.WriteString(`<p><span class="field-marker" data-field="` + col + `">` + val + `</span></p>`)
		}
		return &genai.Response{Text: sb.String()}, nil
	})
}

// RequestWithPathParam wraps a request with chi URL params.
func RequestWithPathParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!"), []byte("leapdoc-test-block-key-32-bytes!"))
}
