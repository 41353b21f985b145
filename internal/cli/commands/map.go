package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/leapstack-labs/leapdoc/internal/mapping"
	"github.com/spf13/cobra"
)

// MapOptions holds options for the map command.
type MapOptions struct {
	Set     []string
	Save    string
	Confirm bool
}

// NewMapCommand creates the map command.
func NewMapCommand() *cobra.Command {
	opts := &MapOptions{}

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Suggest and edit the field-to-column mapping",
		Long: `Match each template placeholder to a dataset column.

The suggestion comes from the generation service, or from name similarity
when mapping.suggest is heuristic. A mapping file, when configured, replaces
the suggestion. Use --set to override single fields and --save to write the
result for later runs.`,
		Example: `  # Show the suggested mapping
  leapdoc map --data clientes.csv --template contrato.docx

  # Override a field and save the mapping
  leapdoc map --set "NomeCompleto=Nome" --save mapeamento.yaml

  # Check that the mapping satisfies the policy
  leapdoc map --mapping mapeamento.yaml --confirm`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMap(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "Map a field to a column (field=column, empty column unmaps)")
	cmd.Flags().StringVar(&opts.Save, "save", "", "Write the mapping to a YAML file")
	cmd.Flags().BoolVar(&opts.Confirm, "confirm", false, "Confirm the mapping under the configured policy")

	return cmd
}

func runMap(cmd *cobra.Command, opts *MapOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, eng, r := cmdCtx.Cfg, cmdCtx.Engine, cmdCtx.Renderer
	if cfg.Template == "" {
		return fmt.Errorf("map needs a template\nHint: pass --template")
	}

	c, err := openTemplate(cfg.Template)
	if err != nil {
		return err
	}
	if _, err := eng.UseTemplate(cmd.Context(), c); err != nil {
		return err
	}
	if cfg.MappingFile != "" {
		m, err := mapping.Load(cfg.MappingFile)
		if err != nil {
			return fmt.Errorf("failed to load mapping: %w", err)
		}
		if err := eng.UseMapping(m); err != nil {
			return err
		}
	}
	for _, pair := range opts.Set {
		field, column, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q: want field=column", pair)
		}
		if err := eng.SetMapping(strings.TrimSpace(field), strings.TrimSpace(column)); err != nil {
			return err
		}
	}

	m := eng.Mapping()
	if opts.Confirm {
		confirmed, err := eng.ConfirmMapping()
		if err != nil {
			_ = renderMapping(r, m)
			return err
		}
		m = confirmed
	}

	if opts.Save != "" {
		if err := mapping.Save(opts.Save, m); err != nil {
			return err
		}
	}

	if err := renderMapping(r, m); err != nil {
		return err
	}
	if opts.Save != "" {
		r.Success(fmt.Sprintf("Mapping saved to %s", opts.Save))
	}
	if opts.Confirm {
		r.Success("Mapping confirmed")
	}
	return nil
}

// MappingEntry is one field of a mapping in JSON output.
type MappingEntry struct {
	Field  string `json:"field"`
	Column string `json:"column,omitempty"`
}

func renderMapping(r *output.Renderer, m *mapping.Mapping) error {
	fields := m.Fields()
	if r.EffectiveMode() == output.ModeJSON {
		entries := make([]MappingEntry, len(fields))
		for i, f := range fields {
			col, _ := m.Column(f)
			entries[i] = MappingEntry{Field: f, Column: col}
		}
		return r.JSON(map[string]any{"mapping": entries, "unmapped": m.Unmapped()})
	}

	r.Header(1, "Field Mapping")
	rows := make([][]string, len(fields))
	for i, f := range fields {
		col, ok := m.Column(f)
		if !ok {
			col = "(unmapped)"
		}
		rows[i] = []string{f, col}
	}
	r.Table([]string{"Field", "Column"}, rows)
	if unmapped := m.Unmapped(); len(unmapped) > 0 {
		r.Warning(fmt.Sprintf("%d field(s) unmapped: %s", len(unmapped), strings.Join(unmapped, ", ")))
	}
	return nil
}
