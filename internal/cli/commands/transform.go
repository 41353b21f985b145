package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/leapstack-labs/leapdoc/internal/transform"
	"github.com/spf13/cobra"
)

// TransformOptions holds options for the transform command.
type TransformOptions struct {
	Script string
	Rules  string
	Out    string
}

// NewTransformCommand creates the transform command.
func NewTransformCommand() *cobra.Command {
	opts := &TransformOptions{}

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Rewrite dataset values with a script or plain-language rules",
		Long: `Rewrite every record of the dataset and save the result.

--script runs a Starlark file offline. It must define transform(row),
called once per record with a dict of column values, or transform_all(rows)
for the whole list. --rules sends the records and the rules to the
generation service. The record count must be unchanged.`,
		Example: `  # Upper-case names with a script
  leapdoc transform --script limpar.star --out dados_limpos.csv

  # Ask the service to normalise dates
  leapdoc transform --rules "datas no formato DD/MM/AAAA" --out dados.xlsx`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTransform(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "Starlark script defining transform(row) or transform_all(rows)")
	cmd.Flags().StringVar(&opts.Rules, "rules", "", "Plain-language rules for the generation service")
	cmd.Flags().StringVar(&opts.Out, "out", "", "Write the transformed dataset to this CSV or XLSX file")

	return cmd
}

// TransformOutput is the JSON output of the transform command.
type TransformOutput struct {
	Changed []int  `json:"changed"`
	Out     string `json:"out,omitempty"`
}

func runTransform(cmd *cobra.Command, opts *TransformOptions) error {
	if (opts.Script == "") == (opts.Rules == "") {
		return errors.New("exactly one of --script or --rules is required")
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, eng, r := cmdCtx.Cfg, cmdCtx.Engine, cmdCtx.Renderer

	var tr transform.Transformer
	if opts.Script != "" {
		script, err := transform.LoadScript(opts.Script, cmdCtx.Logger)
		if err != nil {
			return fmt.Errorf("failed to load script: %w", err)
		}
		tr = script
	} else {
		tr = transform.Service{Generator: eng.Generator(), Rules: opts.Rules}
	}

	changed, err := eng.Transform(cmd.Context(), tr)
	if err != nil {
		return serviceError(err)
	}

	out := TransformOutput{Changed: make([]int, len(changed))}
	for i, row := range changed {
		out.Changed[i] = row + 1
	}
	if opts.Out != "" {
		path, err := filepath.Abs(opts.Out)
		if err != nil {
			return err
		}
		if err := eng.SaveDataset(path, datasetOptions(cfg)); err != nil {
			return err
		}
		out.Out = path
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}
	r.Success(fmt.Sprintf("%d of %d rows changed", len(changed), eng.Dataset().Len()))
	if out.Out != "" {
		r.Success(fmt.Sprintf("Dataset saved to %s", out.Out))
	} else if len(changed) > 0 {
		r.Warning("changes were not saved\nHint: pass --out to write the transformed dataset")
	}
	return nil
}
