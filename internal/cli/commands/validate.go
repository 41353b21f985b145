package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/leapstack-labs/leapdoc/internal/overlay"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/spf13/cobra"
)

// ValidateOptions holds options for the validate command.
type ValidateOptions struct {
	Render bool
	// Row validates a single 1-based row when set; 0 checks every row.
	Row int
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check rows and report issues per field",
		Long: `Validate the dataset rows and list the issues found per field.

Without --row every row is checked, concurrently. With --row only that row
is checked, with a single service call. Local rules from validation.rules
run offline; service validation runs when a credential is available. With
--render the documents are rendered first so issues can be located in
them as well as in the data grid.`,
		Example: `  # Validate the configured dataset
  leapdoc validate

  # Validate row 2 only
  leapdoc validate --row 2

  # Validate and locate issues in the rendered documents
  leapdoc validate --render --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Render, "render", false, "Render documents and locate issues in them")
	cmd.Flags().IntVarP(&opts.Row, "row", "r", 0, "Validate only this row (1-based)")

	return cmd
}

// ValidateOutput is the JSON output of the validate command.
type ValidateOutput struct {
	Clean      bool                   `json:"clean"`
	Issues     []core.ValidationIssue `json:"issues"`
	Cells      []overlay.Cell         `json:"cells"`
	Highlights []overlay.Highlight    `json:"highlights,omitempty"`
	Unresolved []core.ValidationIssue `json:"unresolved,omitempty"`
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	eng, r := cmdCtx.Engine, cmdCtx.Renderer

	row := -1
	if opts.Row != 0 {
		row, err = parseRow(opts.Row, eng.Dataset().Len())
		if err != nil {
			return err
		}
	}

	if opts.Render {
		if err := prepareLayout(ctx, cmdCtx); err != nil {
			return err
		}
		if row >= 0 {
			if _, err := eng.RenderRow(ctx, row); err != nil {
				r.Warning(fmt.Sprintf("document %d failed to render: %v", row+1, err))
			}
		} else if _, err := eng.RenderAll(ctx, nil); err != nil {
			r.Warning(fmt.Sprintf("some documents failed to render: %v", err))
		}
	}

	var issues []core.ValidationIssue
	var validateErr error
	if row >= 0 {
		issues, validateErr = eng.ValidateRow(ctx, row)
	} else {
		issues, validateErr = eng.Validate(ctx)
	}
	if issues == nil && validateErr != nil {
		return serviceError(validateErr)
	}
	res, err := eng.Overlay()
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(ValidateOutput{
			Clean:      res.Clean,
			Issues:     issues,
			Cells:      res.Cells,
			Highlights: res.Highlights,
			Unresolved: res.Unresolved,
		}); err != nil {
			return err
		}
		return validateErr
	}

	if res.Clean {
		if row >= 0 {
			r.Success(fmt.Sprintf("No issues in row %d", row+1))
		} else {
			r.Success(fmt.Sprintf("No issues in %d rows", eng.Dataset().Len()))
		}
		return validateErr
	}

	r.Header(1, "Validation Issues")
	rows := make([][]string, len(issues))
	for i, is := range issues {
		rows[i] = []string{fmt.Sprintf("%d", is.Row+1), is.Field, is.Message}
	}
	r.Table([]string{"Row", "Field", "Issue"}, rows)

	r.Println("")
	r.KeyValue("Flagged cells", fmt.Sprintf("%d", len(res.Cells)))
	if opts.Render {
		r.KeyValue("Marked in documents", fmt.Sprintf("%d", len(res.Highlights)))
	}
	for _, is := range res.Unresolved {
		r.Warning(fmt.Sprintf("row %d: field %q matches no column", is.Row+1, is.Field))
	}
	return validateErr
}
