package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Row    int
	Number int
	Status string
	Markup string
}

func TestRender_Document(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	out, err := v.Render(PartialDoc, doc{
		Row:    2,
		Number: 3,
		Status: "ok",
		Markup: `<p><span class="field-marker" data-field="Nome">Caio</span></p>`,
	})
	require.NoError(t, err)

	assert.Contains(t, out, `id="doc-2"`)
	assert.Contains(t, out, "Documento 3")
	assert.Contains(t, out, `data-field="Nome"`, "markup is not escaped")
}

func TestRender_PageUsesVersionedStylesheet(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	out, err := v.Render(PageRuns, struct{ Runs []any }{})
	require.NoError(t, err)

	assert.Contains(t, out, "<!doctype html>")
	assert.Contains(t, out, `href="/static/app.css`)
	assert.Contains(t, out, "Nenhuma execução registrada.")
}

func TestRender_EscapesValues(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	out, err := v.Render(PartialNote, struct {
		Notice *struct{ Level, Message string }
	}{Notice: &struct{ Level, Message string }{Level: "error", Message: "<b>x</b>"}})
	require.NoError(t, err)

	assert.Contains(t, out, "notice-error")
	assert.Contains(t, out, "&lt;b&gt;x&lt;/b&gt;")
}

func TestRender_Unknown(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	_, err = v.Render("missing.html", nil)
	assert.Error(t, err)
}
