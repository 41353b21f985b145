package genai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/testutil"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gemini "google.golang.org/genai"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGemini(context.Background(), GeminiConfig{
		APIKey:   "test-key",
		Endpoint: srv.URL + "/",
		Logger:   testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	return g
}

func TestGemini_Generate(t *testing.T) {
	var captured map[string]any
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"[{\"field\":"},{"text":"\"Email\",\"issue\":\"x\"}]"}]},"finishReason":"STOP"}]}`)
	})

	var issues []struct {
		Field string `json:"field"`
		Issue string `json:"issue"`
	}
	err := GenerateJSON(context.Background(), g, Request{
		System: "valide",
		Prompt: "dados",
		Schema: ArrayOf(Object(map[string]*Schema{"field": String(""), "issue": String("")}, "field", "issue")),
	}, &issues)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "Email", issues[0].Field)

	cfg, ok := captured["generationConfig"].(map[string]any)
	require.True(t, ok, "schema requests set a generation config")
	assert.Equal(t, "application/json", cfg["responseMimeType"])
	schema, ok := cfg["responseSchema"].(map[string]any)
	require.True(t, ok, "schema is forwarded")
	assert.Equal(t, "ARRAY", schema["type"])
	assert.NotNil(t, captured["systemInstruction"])
}

func TestGemini_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  error
		rateLimit bool
	}{
		{name: "rate limited", status: 429, body: `{"error":{"code":429,"message":"Resource exhausted"}}`, wantKind: core.ErrServiceAuthOrQuota, rateLimit: true},
		{name: "invalid key", status: 400, body: `{"error":{"code":400,"message":"API key not valid","details":[{"reason":"API_KEY_INVALID"}]}}`, wantKind: core.ErrServiceAuthOrQuota},
		{name: "unauthorized", status: 401, body: `{"error":{"code":401,"message":"unauthenticated"}}`, wantKind: core.ErrServiceAuthOrQuota},
		{name: "forbidden", status: 403, body: `{"error":{"code":403,"message":"denied"}}`, wantKind: core.ErrServiceAuthOrQuota},
		{name: "server error", status: 500, body: `{"error":{"code":500,"message":"boom"}}`, wantKind: core.ErrServiceTransient},
		{name: "no candidates", status: 200, body: `{"candidates":[]}`, wantKind: core.ErrServiceTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := g.Generate(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.rateLimit, isRateLimited(err))
		})
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{APIKey: "  "})
	assert.ErrorIs(t, err, core.ErrNoCredential)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.ErrorIs(t, Classify(gemini.APIError{Code: 401}), core.ErrServiceAuthOrQuota)
	assert.ErrorIs(t, Classify(gemini.APIError{Code: 400, Details: []map[string]any{{"reason": "API_KEY_INVALID"}}}), core.ErrServiceAuthOrQuota)
	assert.ErrorIs(t, Classify(gemini.APIError{Code: 400}), core.ErrServiceTransient)
	assert.ErrorIs(t, Classify(errors.New("dial tcp: timeout")), core.ErrServiceTransient)
	assert.ErrorIs(t, Classify(context.Canceled), context.Canceled)
}

func TestDecodeJSON(t *testing.T) {
	var out map[string]string
	require.NoError(t, DecodeJSON("```json\n{\"Nome\": \"nome\"}\n```", &out))
	assert.Equal(t, "nome", out["Nome"])

	err := DecodeJSON("sorry, I cannot", &out)
	assert.ErrorIs(t, err, core.ErrServiceTransient)
	assert.ErrorIs(t, DecodeJSON("  ", &out), core.ErrServiceTransient)
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(&ServiceError{Code: 429, Kind: core.ErrServiceAuthOrQuota}), "Limite")
	assert.Contains(t, UserMessage(&ServiceError{Code: 401, Kind: core.ErrServiceAuthOrQuota}), "chave")
	assert.Contains(t, UserMessage(core.ErrNoCredential), "Nenhuma")
	assert.Equal(t, "", UserMessage(nil))
}

func TestRenderPrompt(t *testing.T) {
	row := dataset.NewRow(0, []string{"Nome", "Email"}, []string{"Ana <b>", "a@x.com"})

	out, err := RenderPrompt(PromptLayout, map[string]any{
		"instructions": "Crie um layout limpo e profissional.",
		"pairs":        row.Pairs(),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "- Nome: Ana <b>", "prompts are not HTML-escaped")
	assert.Contains(t, out, `data-field="COLUNA"`)

	out, err = RenderPrompt(PromptAnalyze, map[string]any{
		"sample": 1, "total": 3,
		"columns": []string{"a", "b"},
		"rows":    [][]string{{"1", "2"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Colunas: a, b")
	assert.Contains(t, out, "1; 2")

	_, err = RenderPrompt("missing.tpl", nil)
	assert.Error(t, err)
}
