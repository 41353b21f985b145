package cli

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdoc/internal/cli/config"
	"github.com/leapstack-labs/leapdoc/internal/cli/output"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{
		"version", "init", "doctor", "placeholders", "map", "render", "validate",
		"export", "analyze", "transform", "runs", "serve", "shell", "completion",
	} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRootPersistentFlags(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{
		"config", "data", "delimiter", "sheet", "template", "mapping", "layout", "instructions",
		"name-column", "state", "verbose", "output", "log-format", "model", "api-key", "secret",
		"policy", "suggest", "halt", "concurrency",
	} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "flag %q should exist", name)
	}
	assert.Equal(t, "v", root.PersistentFlags().Lookup("verbose").Shorthand)
	assert.Equal(t, "o", root.PersistentFlags().Lookup("output").Shorthand)
}

func TestPersistentPreRunStoresContext(t *testing.T) {
	t.Chdir(t.TempDir())
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	var (
		gotCfg  *config.Config
		gotMode output.OutputMode
		logger  bool
	)
	root := NewRootCmd()
	root.AddCommand(&cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gotCfg = GetConfig(cmd.Context())
			gotMode = GetRenderer(cmd.Context()).EffectiveMode()
			_, logger = cmd.Context().Value(config.LoggerKey()).(*slog.Logger)
			return nil
		},
	})
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"probe", "--delimiter", ",", "--output", "json", "--policy", "permissive"})

	require.NoError(t, root.Execute())

	require.NotNil(t, gotCfg)
	assert.Equal(t, ",", gotCfg.Delimiter)
	assert.Equal(t, "permissive", gotCfg.Mapping.Policy)
	assert.Equal(t, output.ModeJSON, gotMode)
	assert.True(t, logger)
}

func TestPersistentPreRunRejectsInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	root := NewRootCmd()
	root.AddCommand(&cobra.Command{Use: "probe", RunE: func(*cobra.Command, []string) error { return nil }})
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"probe", "--output", "yaml"})

	assert.Error(t, root.Execute())
}

func TestGetConfigDefaults(t *testing.T) {
	cfg := GetConfig(context.Background())

	assert.Equal(t, config.DefaultDelimiter, cfg.Delimiter)
	assert.Equal(t, config.DefaultStateFile, cfg.StatePath)
	assert.NotNil(t, GetRenderer(context.Background()))
}

func TestCompletionCommand(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"completion", "bash"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "leapdoc")
}
