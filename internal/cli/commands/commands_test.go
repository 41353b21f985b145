package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		name    string
		cmd     *cobra.Command
		use     string
		flags   []string
		example bool
	}{
		{name: "placeholders", cmd: NewPlaceholdersCommand(), use: "placeholders [template]"},
		{name: "map", cmd: NewMapCommand(), use: "map", flags: []string{"set", "save", "confirm"}},
		{name: "render", cmd: NewRenderCommand(), use: "render", flags: []string{"row", "all", "copy", "raw"}, example: true},
		{name: "validate", cmd: NewValidateCommand(), use: "validate", flags: []string{"render", "row"}, example: true},
		{
			name:    "export",
			cmd:     NewExportCommand(),
			use:     "export",
			flags:   []string{"export-dir", "archive-name", "gcs-bucket", "gcs-prefix", "dataset"},
			example: true,
		},
		{name: "analyze", cmd: NewAnalyzeCommand(), use: "analyze"},
		{name: "transform", cmd: NewTransformCommand(), use: "transform", flags: []string{"script", "rules", "out"}},
		{name: "runs", cmd: NewRunsCommand(), use: "runs [run-id]", flags: []string{"limit"}},
		{name: "serve", cmd: NewServeCommand(), use: "serve", flags: []string{"port", "no-browser", "watch"}, example: true},
		{name: "shell", cmd: NewShellCommand(), use: "shell", example: true},
		{name: "init", cmd: NewInitCommand(), use: "init [directory]", flags: []string{"force", "example"}, example: true},
		{name: "doctor", cmd: NewDoctorCommand(), use: "doctor", flags: []string{"format"}, example: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			if tt.example {
				assert.NotEmpty(t, tt.cmd.Example, "Example should not be empty")
			}
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestServeCommandAlias(t *testing.T) {
	cmd := NewServeCommand()

	assert.Contains(t, cmd.Aliases, "ui")
}

func TestRunsLimitDefault(t *testing.T) {
	cmd := NewRunsCommand()

	flag := cmd.Flags().Lookup("limit")
	assert.Equal(t, "20", flag.DefValue)
	assert.Equal(t, "n", flag.Shorthand)
}

func TestParseRow(t *testing.T) {
	tests := []struct {
		row, total int
		want       int
		wantErr    bool
	}{
		{row: 1, total: 3, want: 0},
		{row: 3, total: 3, want: 2},
		{row: 0, total: 3, wantErr: true},
		{row: 4, total: 3, wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseRow(tt.row, tt.total)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
