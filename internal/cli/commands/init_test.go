package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdoc/internal/mapping"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string) // setup before running
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name:      "init empty directory",
			args:      []string{},
			wantFiles: []string{"leapdoc.yaml", ".gitignore"},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapdoc.yaml"), []byte("existing"), 0600)
			},
			args:    []string{},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapdoc.yaml"), []byte("existing"), 0600)
			},
			args:      []string{"--force"},
			wantFiles: []string{"leapdoc.yaml"},
		},
		{
			name: "init example",
			args: []string{"--example"},
			wantFiles: []string{
				"leapdoc.yaml",
				"mapping.yaml",
				"dados/clientes.csv",
				"modelos/recibo.html",
			},
		},
		{
			name:      "init into new directory",
			args:      []string{"recibos"},
			wantFiles: []string{"recibos/leapdoc.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Chdir(tmpDir)

			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			for _, f := range tt.wantFiles {
				_, err := os.Stat(filepath.Join(tmpDir, f))
				assert.False(t, os.IsNotExist(err), "expected file %q to exist", f)
			}
		})
	}
}

func TestInitCreatesValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile("leapdoc.yaml")
	require.NoError(t, err, "failed to read leapdoc.yaml")

	for _, expected := range []string{
		"data: dados.csv",
		`delimiter: ";"`,
		"state_path:",
		"api_key_env: GEMINI_API_KEY",
	} {
		assert.Contains(t, string(content), expected, "config should contain %q", expected)
	}
}

func TestInitExampleMappingCoversTemplate(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--example"})
	require.NoError(t, cmd.Execute())

	m, err := mapping.Load("mapping.yaml")
	require.NoError(t, err)
	assert.Empty(t, m.Unmapped())
	col, ok := m.Column("Documento")
	assert.True(t, ok)
	assert.Equal(t, "CPF", col)
}

func TestGroupTemplateFiles(t *testing.T) {
	groups := groupTemplateFiles([]string{
		"leapdoc.yaml",
		"dados/clientes.csv",
		"modelos/recibo.html",
		".gitignore",
	})

	assert.Equal(t, []string{"leapdoc.yaml", ".gitignore"}, groups["config"])
	assert.Equal(t, []string{"dados/clientes.csv"}, groups["data"])
	assert.Equal(t, []string{"modelos/recibo.html"}, groups["templates"])
}
