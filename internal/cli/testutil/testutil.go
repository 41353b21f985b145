// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapdoc/internal/cli/output"
)

// TestProject is a temporary directory holding a dataset and a template.
type TestProject struct {
	Dir      string
	Data     string
	Template string
	State    string
}

// Dataset and template written by SetupTestProject.
const (
	TestDataset = "Nome;Email;Valor\n" +
		"Ana;a@x.com;100\n" +
		"Beto;sem-arroba;250\n" +
		"Caio;c@x.com;75\n"

	TestTemplate = `<h1>Recibo</h1><p>Recebemos de {Nome} ({Email}) o valor de {Valor}.</p>`
)

// SetupTestProject creates a temporary project with a semicolon separated
// dataset and an HTML template that uses every column.
func SetupTestProject(t *testing.T) *TestProject {
	t.Helper()

	tmpDir := t.TempDir()
	p := &TestProject{
		Dir:      tmpDir,
		Data:     filepath.Join(tmpDir, "clientes.csv"),
		Template: filepath.Join(tmpDir, "recibo.html"),
		State:    filepath.Join(tmpDir, ".leapdoc", "state.db"),
	}

	if err := os.WriteFile(p.Data, []byte(TestDataset), 0o600); err != nil {
		t.Fatalf("failed to create clientes.csv: %v", err)
	}
	if err := os.WriteFile(p.Template, []byte(TestTemplate), 0o600); err != nil {
		t.Fatalf("failed to create recibo.html: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.State), 0o750); err != nil {
		t.Fatalf("failed to create state directory: %v", err)
	}

	return p
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the combined stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and basic structure.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if fenceCount := strings.Count(md, "```"); fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	// Check that headers have content
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
