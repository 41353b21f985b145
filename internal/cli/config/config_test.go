package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "leapdoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Empty(t, GetConfigFileUsed())
	assert.Equal(t, ";", cfg.Delimiter)
	assert.Equal(t, "auto", cfg.OutputFormat)
	assert.Equal(t, DefaultModel, cfg.Generation.Model)
	assert.Equal(t, DefaultAPIKeyEnv, cfg.Generation.APIKeyEnv)
	assert.Equal(t, 500*time.Millisecond, cfg.Generation.Spacing)
	assert.Equal(t, time.Minute, cfg.Generation.Timeout)
	assert.Equal(t, "strict", cfg.Mapping.Policy)
	assert.True(t, cfg.Render.HaltOnError)
	assert.Equal(t, 4, cfg.Validation.Concurrency)
	assert.Equal(t, 8765, cfg.UI.Port)
	assert.True(t, filepath.IsAbs(cfg.StatePath))
	assert.Equal(t, GetCurrentConfig(), cfg)
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	path := writeConfig(t, dir, `data: dados.csv
template: modelo.docx
name_column: Nome
generation:
  spacing: 2s
  api_key: ${LEAPDOC_TEST_KEY}
mapping:
  policy: permissive
validation:
  concurrency: 2
  rules:
    - field: Email
      expr: isEmail(value)
      message: e-mail inválido
export:
  gcs_bucket: docs
`)
	t.Setenv("LEAPDOC_TEST_KEY", "k-123")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, GetConfigFileUsed())
	assert.Equal(t, filepath.Join(dir, "dados.csv"), cfg.Data, "paths resolve against the config directory")
	assert.Equal(t, filepath.Join(dir, "modelo.docx"), cfg.Template)
	assert.Equal(t, "template", cfg.EffectiveLayout())
	assert.Equal(t, 2*time.Second, cfg.Generation.Spacing)
	assert.Equal(t, "k-123", cfg.Generation.APIKey)
	assert.Equal(t, "permissive", cfg.Mapping.Policy)
	require.Len(t, cfg.Validation.Rules, 1)
	assert.Equal(t, "Email", cfg.Validation.Rules[0].Field)
	assert.Equal(t, "docs", cfg.Export.GCSBucket)
}

func TestLoadConfig_SearchesUpward(t *testing.T) {
	ResetConfig()
	root := t.TempDir()
	writeConfig(t, root, "name_column: Cliente\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0750))
	t.Chdir(nested)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "Cliente", cfg.NameColumn)
	assert.Equal(t, root, cfg.ProjectRoot)
}

func TestLoadConfig_Precedence(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		flag    string
		want    string
		wantSec time.Duration
	}{
		{name: "file only", want: "from_file", wantSec: time.Second},
		{name: "env over file", env: "from_env", want: "from_env", wantSec: 3 * time.Second},
		{name: "flag over env", env: "from_env", flag: "from_flag", want: "from_flag", wantSec: 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			path := writeConfig(t, t.TempDir(), "name_column: from_file\ngeneration:\n  spacing: 1s\n")
			if tt.env != "" {
				t.Setenv("LEAPDOC_NAME_COLUMN", tt.env)
				t.Setenv("LEAPDOC_GENERATION__SPACING", "3s")
			}

			flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
			flags.String("name-column", "", "")
			flags.String("output", "auto", "")
			if tt.flag != "" {
				require.NoError(t, flags.Set("name-column", tt.flag))
			}

			cfg, err := LoadConfig(path, flags)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.NameColumn)
			assert.Equal(t, tt.wantSec, cfg.Generation.Spacing)
			assert.Equal(t, "auto", cfg.OutputFormat, "unset flags do not override")
		})
	}
}

func TestLoadConfig_MappedFlags(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("state", "", "")
	flags.String("policy", "", "")
	flags.Bool("halt", true, "")
	flags.Int("port", 0, "")
	require.NoError(t, flags.Set("state", ":memory:"))
	require.NoError(t, flags.Set("policy", "permissive"))
	require.NoError(t, flags.Set("halt", "false"))
	require.NoError(t, flags.Set("port", "9000"))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.StatePath)
	assert.Equal(t, "permissive", cfg.Mapping.Policy)
	assert.False(t, cfg.Render.HaltOnError)
	assert.Equal(t, 9000, cfg.UI.Port)
}

func TestLoadConfig_Invalid(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, t.TempDir(), "mapping:\n  policy: loose\n")
	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		errSubstr string
	}{
		{name: "zero value", cfg: Config{}},
		{name: "bad output", cfg: Config{OutputFormat: "yaml"}, errSubstr: "output"},
		{name: "bad log format", cfg: Config{LogFormat: "xml"}, errSubstr: "log_format"},
		{name: "bad layout", cfg: Config{Layout: "pdf"}, errSubstr: "layout"},
		{name: "template layout without file", cfg: Config{Layout: "template"}, errSubstr: "template file"},
		{name: "bad suggest", cfg: Config{Mapping: MappingConfig{Suggest: "magic"}}, errSubstr: "mapping.suggest"},
		{name: "bad delimiter", cfg: Config{Delimiter: ";;"}, errSubstr: "delimiter"},
		{name: "negative concurrency", cfg: Config{Validation: ValidationConfig{Concurrency: -1}}, errSubstr: "concurrency"},
		{name: "bad port", cfg: Config{UI: UIConfig{Port: 70000}}, errSubstr: "ui.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConfig_ValidateData(t *testing.T) {
	assert.Error(t, (&Config{}).ValidateData())
	assert.Error(t, (&Config{Data: filepath.Join(t.TempDir(), "missing.csv")}).ValidateData())

	path := filepath.Join(t.TempDir(), "dados.csv")
	require.NoError(t, os.WriteFile(path, []byte("Nome\nAna\n"), 0600))
	assert.NoError(t, (&Config{Data: path}).ValidateData())
}

func TestEffectiveLayout(t *testing.T) {
	assert.Equal(t, LayoutGenerated, (&Config{}).EffectiveLayout())
	assert.Equal(t, LayoutTemplate, (&Config{Template: "t.html"}).EffectiveLayout())
	assert.Equal(t, LayoutGenerated, (&Config{Template: "t.html", Layout: "generated"}).EffectiveLayout())
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LEAPDOC_X", "valor")
	assert.Equal(t, "valor", expandEnvVars("${LEAPDOC_X}"))
	assert.Equal(t, "a-valor-b", expandEnvVars("a-${LEAPDOC_X}-b"))
	assert.Equal(t, "${LEAPDOC_MISSING}", expandEnvVars("${LEAPDOC_MISSING}"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	l := slog.New(slog.DiscardHandler)
	ctx := context.WithValue(context.Background(), LoggerKey(), l)
	assert.Same(t, l, GetLogger(ctx))
}

func TestLoadConfig_IgnoresCommandFlags(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("render", false, "")
	flags.Int("limit", 20, "")
	flags.String("export-dir", "", "")
	require.NoError(t, flags.Set("render", "true"))
	require.NoError(t, flags.Set("limit", "5"))
	require.NoError(t, flags.Set("export-dir", "saida"))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.True(t, cfg.Render.HaltOnError, "validate --render does not replace the render section")
	assert.True(t, filepath.IsAbs(cfg.Export.Dir))
	assert.Equal(t, "saida", filepath.Base(cfg.Export.Dir))
}
