package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	data, err := Build([]Entry{
		{Name: "documento_1.html", Content: []byte("<p>1</p>")},
		{Name: "documento_2.html", Content: []byte("<p>2</p>")},
	})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "documento_1.html", zr.File[0].Name)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "<p>2</p>", string(content))
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)

	_, err = Build([]Entry{{Name: "a.html"}, {Name: "/a.html"}})
	assert.ErrorContains(t, err, "duplicate")

	_, err = Build([]Entry{{Name: "../escape.html"}})
	assert.ErrorContains(t, err, "invalid entry")
}

func TestNamer(t *testing.T) {
	n := NewNamer("")

	assert.Equal(t, "documento_1.html", n.Name(0, "", ".html"))
	assert.Equal(t, "joao-da-silva.docx", n.Name(1, "João da Silva", ".docx"))
	assert.Equal(t, "joao-da-silva-2.docx", n.Name(2, "Joao da Silva!", ".docx"))
	assert.Equal(t, "documento_4.html", n.Name(3, "   ", ".html"))
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Ação Imediata":     "acao-imediata",
		"  --Olá, Mundo!--": "ola-mundo",
		"日本":                "",
		"Nº 42/2024":        "n-42-2024",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	loc, err := FileSink{Dir: dir}.Put(context.Background(), "sub/documentos.zip", []byte("zip"))
	require.NoError(t, err)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "zip", string(data))
}

type fakeUpload struct {
	buf      bytes.Buffer
	closeErr error
}

func (f *fakeUpload) Write(p []byte) (int, error) { return f.buf.Write(p) }
func (f *fakeUpload) Close() error { return f.closeErr }

type fakeObjects struct {
	objects  map[string]*fakeUpload
	closeErr error
}

func (f *fakeObjects) NewWriter(_ context.Context, bucket, object string) objectUpload {
	u := &fakeUpload{closeErr: f.closeErr}
	f.objects[bucket+"/"+object] = u
	return u
}

func TestGCSSink(t *testing.T) {
	objects := &fakeObjects{objects: map[string]*fakeUpload{}}
	sink, err := newGCSSink(objects, "exports", "/leapdoc/")
	require.NoError(t, err)

	loc, err := sink.Put(context.Background(), "documentos.zip", []byte("zip"))
	require.NoError(t, err)
	assert.Equal(t, "gs://exports/leapdoc/documentos.zip", loc)
	assert.Equal(t, "zip", objects.objects["exports/leapdoc/documentos.zip"].buf.String())

	objects.closeErr = errors.New("permission denied")
	_, err = sink.Put(context.Background(), "x.zip", nil)
	assert.ErrorContains(t, err, "permission denied")

	_, err = newGCSSink(objects, " ", "")
	assert.Error(t, err)
	_, err = NewGCSSink(nil, "b", "")
	assert.Error(t, err)
}
