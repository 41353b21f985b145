package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/leapstack-labs/leapdoc/internal/placeholder"
	"github.com/spf13/cobra"
)

// NewPlaceholdersCommand creates the placeholders command.
func NewPlaceholdersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "placeholders [template]",
		Short: "List the placeholder fields of a template",
		Long: `List the distinct {placeholder} fields of an HTML or DOCX template,
in order of first appearance.

Placeholders split across formatting runs in DOCX files are found as
long as their text is contiguous.`,
		Example: `  # List fields of the configured template
  leapdoc placeholders

  # List fields of a specific file
  leapdoc placeholders contrato.docx --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := getConfig().Template
			if len(args) == 1 {
				path = args[0]
			}
			return runPlaceholders(cmd, path)
		},
	}
	return cmd
}

func runPlaceholders(cmd *cobra.Command, path string) error {
	if path == "" {
		return fmt.Errorf("no template given\nHint: pass a file or set template in leapdoc.yaml")
	}
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	r := cmdCtx.Renderer

	c, err := openTemplate(path)
	if err != nil {
		return err
	}
	fields, err := placeholder.ExtractContainer(c)
	if err != nil {
		return err
	}
	cmdCtx.Logger.Debug("placeholders extracted", "template", path, "fields", len(fields))

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{"template": path, "fields": fields})
	}
	if len(fields) == 0 {
		r.Warning("template has no placeholders")
		return nil
	}
	r.Header(1, fmt.Sprintf("Placeholders: %s", c.Name()))
	rows := make([][]string, len(fields))
	for i, f := range fields {
		rows[i] = []string{fmt.Sprintf("%d", i+1), f}
	}
	r.Table([]string{"#", "Field"}, rows)
	return nil
}
