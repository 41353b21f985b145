package container

import (
	"testing"

	"github.com/leapstack-labs/leapdoc/internal/markup"
	"github.com/leapstack-labs/leapdoc/internal/placeholder"
	"github.com/leapstack-labs/leapdoc/internal/testutil"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	c, err := Open("carta.HTML", []byte("<p>{Nome}</p>"))
	require.NoError(t, err)
	assert.Equal(t, KindHTML, c.Kind())

	_, err = Open("carta.pdf", nil)
	assert.ErrorIs(t, err, core.ErrTemplateUnreadable)

	_, err = Open("carta.docx", []byte("not a zip"))
	assert.ErrorIs(t, err, core.ErrContainerCorrupt)
}

func TestHTML_FillAndSlots(t *testing.T) {
	src := `<html><head><title>{Nome}</title></head><body><a href="mailto:{Email}">{Email}</a><p>{Nome} &amp; {Nome}</p></body></html>`
	h := NewHTML("t.html", []byte(src))

	names, err := placeholder.ExtractContainer(h)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nome", "Email"}, names)

	filled, err := h.Fill(map[string]string{"Nome": "Ana <A>", "Email": "a@x.com"})
	require.NoError(t, err)
	raw, _ := filled.RawMarkup()
	assert.Contains(t, raw, "<title>Ana &lt;A&gt;</title>")
	assert.Contains(t, raw, `href="mailto:a@x.com"`)

	marked, err := h.FillSlots(map[string]string{"Nome": "Ana", "Email": "a@x.com"})
	require.NoError(t, err)
	assert.Contains(t, marked, `href="mailto:a@x.com"`, "attribute values are not marked")

	fields, err := markup.Fields(marked)
	require.NoError(t, err)
	assert.Equal(t, []string{"Email", "Nome", "Nome"}, fields)
	assert.NotContains(t, marked, "<title>")
}

func TestDOCX_SplitRuns(t *testing.T) {
	body := testutil.Para("Olá {", "No", "me}, bem-vindo.") +
		testutil.Para("Contato: {Email}")
	d, err := OpenDOCX("carta.docx", testutil.DOCX(t, body))
	require.NoError(t, err)

	names, err := placeholder.ExtractContainer(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nome", "Email"}, names)

	filled, err := d.Fill(map[string]string{"Nome": "Ana & Bia", "Email": "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, ".docx", filled.Ext())

	html, err := filled.ToMarkup()
	require.NoError(t, err)
	assert.Equal(t, "<p>Olá Ana &amp; Bia, bem-vindo.</p><p>Contato: a@x.com</p>", html)

	// The filled package is a valid document without placeholders.
	again, err := OpenDOCX("out.docx", filled.Bytes())
	require.NoError(t, err)
	left, err := placeholder.ExtractContainer(again)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDOCX_FillHeaderSplitRuns(t *testing.T) {
	header := `<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		testutil.Para("Ref. {Pro", "tocolo}") + `</w:hdr>`
	data := testutil.DOCXWithParts(t, testutil.Para("{Nome}"), "word/header1.xml", header)
	d, err := OpenDOCX("carta.docx", data)
	require.NoError(t, err)

	names, err := placeholder.ExtractContainer(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nome", "Protocolo"}, names)

	filled, err := d.Fill(map[string]string{"Nome": "Ana", "Protocolo": "A&B-7"})
	require.NoError(t, err)
	out, ok := filled.(*DOCX)
	require.True(t, ok)
	assert.Contains(t, string(out.parts["word/header1.xml"]), `Ref. A&amp;B-7`)
	assert.NotContains(t, string(out.parts["word/header1.xml"]), "tocolo}")
}

func TestDOCX_FillSlotsMarksEachOccurrence(t *testing.T) {
	body := testutil.Para("{Nome}", " / ", "{Cidade}") +
		`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>{Nome}</w:t></w:r></w:p>`
	d, err := OpenDOCX("t.docx", testutil.DOCX(t, body))
	require.NoError(t, err)

	html, err := d.FillSlots(map[string]string{"Nome": "Ana", "Cidade": "SP"})
	require.NoError(t, err)

	assert.Equal(t,
		`<p>`+markup.WrapText("Nome", "Ana")+` / `+markup.WrapText("Cidade", "SP")+`</p>`+
			`<p><strong>`+markup.WrapText("Nome", "Ana")+`</strong></p>`,
		html)
}

func TestDOCX_ToMarkupStructure(t *testing.T) {
	body := `<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Título</w:t></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:rPr><w:i/></w:rPr><w:t>a</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
		`<w:p><w:r><w:t>x</w:t><w:br/><w:t>y</w:t></w:r></w:p>`
	d, err := OpenDOCX("t.docx", testutil.DOCX(t, body))
	require.NoError(t, err)

	html, err := d.ToMarkup()
	require.NoError(t, err)
	assert.Equal(t, "<h2>Título</h2><table><tr><td><p><em>a</em></p></td></tr></table><p>x<br>y</p>", html)
}

func TestDOCX_MissingDocumentPart(t *testing.T) {
	data := testutil.DOCX(t, "")
	d, err := OpenDOCX("ok.docx", data)
	require.NoError(t, err)

	broken, err := d.repack(nil)
	require.NoError(t, err)
	_, err = OpenDOCX("ok.docx", broken)
	require.NoError(t, err)

	delete(d.parts, documentPart)
	d.order = d.order[:1]
	broken, err = d.repack(nil)
	require.NoError(t, err)
	_, err = OpenDOCX("broken.docx", broken)
	assert.ErrorIs(t, err, core.ErrContainerCorrupt)
}
