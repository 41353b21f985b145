package testutil

import (
	"archive/zip"
	"bytes"
	"testing"
)

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

// DOCX builds a minimal Word package whose body holds the given
// WordprocessingML (paragraphs, tables).
func DOCX(t testing.TB, body string) []byte {
	t.Helper()
	return DOCXWithParts(t, body)
}

// DOCXWithParts builds a Word package like DOCX plus extra parts given as
// name/content pairs, such as "word/header1.xml".
func DOCXWithParts(t testing.TB, body string, extra ...string) []byte {
	t.Helper()
	if len(extra)%2 != 0 {
		t.Fatalf("extra parts must be name/content pairs")
	}

	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body +
		`</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct{ name, content string }{
		{"[Content_Types].xml", contentTypes},
		{"word/document.xml", document},
	}
	for i := 0; i < len(extra); i += 2 {
		parts = append(parts, struct{ name, content string }{extra[i], extra[i+1]})
	}
	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			t.Fatalf("create %s: %v", part.name, err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			t.Fatalf("write %s: %v", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close docx: %v", err)
	}
	return buf.Bytes()
}

// Para builds a paragraph with one run per text piece.
func Para(pieces ...string) string {
	var b bytes.Buffer
	b.WriteString("<w:p>")
	for _, p := range pieces {
		b.WriteString(`<w:r><w:t xml:space="preserve">`)
		b.WriteString(p)
		b.WriteString("</w:t></w:r>")
	}
	b.WriteString("</w:p>")
	return b.String()
}
