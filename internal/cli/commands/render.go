package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/spf13/cobra"
)

// RenderOptions holds options for the render command.
type RenderOptions struct {
	Row  int
	All  bool
	Copy bool
	Raw  bool
}

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Preview the document for one row or for every row",
		Long: `Render the document for a dataset row with the configured layout.

With a template the row's values are substituted into the placeholders.
Without one the generation service lays out each document; generated
documents are requested one at a time with a fixed spacing between calls.

Output adapts to environment:
  - Terminal: the document converted to wrapped text
  - Piped/Scripted: the document converted to Markdown
  - --raw: the HTML fragment as-is`,
		Example: `  # Preview row 1
  leapdoc render

  # Preview row 3 and copy its HTML to the clipboard
  leapdoc render --row 3 --copy

  # Render every row as JSON
  leapdoc render --all --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Row, "row", "r", 1, "Row to render (1-based)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Render every row")
	cmd.Flags().BoolVar(&opts.Copy, "copy", false, "Copy the rendered HTML to the clipboard")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "Print HTML fragments instead of converted text")

	return cmd
}

// FragmentOutput is a rendered row in JSON output.
type FragmentOutput struct {
	Row    int      `json:"row"`
	Status string   `json:"status"`
	Markup string   `json:"markup"`
	Fields []string `json:"fields,omitempty"`
	Error  string   `json:"error,omitempty"`
}

func runRender(cmd *cobra.Command, opts *RenderOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	eng, r := cmdCtx.Engine, cmdCtx.Renderer
	if err := prepareLayout(ctx, cmdCtx); err != nil {
		return err
	}

	var fragments []core.Fragment
	var renderErr error
	if opts.All {
		if err := eng.ShowBulk(); err != nil {
			return err
		}
		res, err := eng.RenderAll(ctx, func(f core.Fragment) {
			cmdCtx.Logger.Debug("row rendered", "row", f.Row+1, "status", string(f.Status))
		})
		if res != nil {
			fragments = res.Fragments
		}
		renderErr = err
	} else {
		row, err := parseRow(opts.Row, eng.Dataset().Len())
		if err != nil {
			return err
		}
		if err := eng.SelectRow(row); err != nil {
			return err
		}
		f, err := eng.RenderActive(ctx)
		fragments = []core.Fragment{f}
		renderErr = err
	}

	if err := writeFragments(r, fragments, opts.Raw); err != nil {
		return err
	}

	if opts.Copy {
		if err := copyFragments(fragments); err != nil {
			r.Warning(fmt.Sprintf("could not copy to clipboard: %v", err))
		} else {
			r.Success("HTML copied to clipboard")
		}
	}

	if renderErr != nil {
		return serviceError(renderErr)
	}
	return nil
}

func writeFragments(r *output.Renderer, fragments []core.Fragment, raw bool) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]FragmentOutput, len(fragments))
		for i, f := range fragments {
			out[i] = FragmentOutput{Row: f.Row + 1, Status: string(f.Status), Markup: f.Markup, Fields: f.Fields}
			if f.Err != nil {
				out[i].Error = f.Err.Error()
			}
		}
		return r.JSON(out)
	}

	for _, f := range fragments {
		title := fmt.Sprintf("Documento %d", f.Row+1)
		if !f.OK() {
			r.StatusLine(title, string(f.Status), fragmentDetail(f))
			continue
		}
		if raw {
			if r.EffectiveMode() == output.ModeMarkdown {
				r.Println(output.FormatHeader(2, title))
				r.Println("")
				r.Println(output.FormatCodeBlock("html", f.Markup))
			} else {
				r.Println(f.Markup)
			}
			continue
		}
		if err := r.Fragment(title, f.Markup); err != nil {
			return err
		}
	}
	return nil
}

func fragmentDetail(f core.Fragment) string {
	if f.Err != nil {
		return genai.UserMessage(f.Err)
	}
	return ""
}

func copyFragments(fragments []core.Fragment) error {
	var b strings.Builder
	for _, f := range fragments {
		if !f.OK() {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(f.Markup)
	}
	if b.Len() == 0 {
		return errors.New("nothing rendered")
	}
	return clipboard.WriteAll(b.String())
}
