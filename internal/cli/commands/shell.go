package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapdoc/internal/archive"
	"github.com/leapstack-labs/leapdoc/internal/cli/config"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/spf13/cobra"
)

const shellPrompt = "leapdoc> "

// NewShellCommand creates the shell command.
func NewShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive document session",
		Long: `Open an interactive session over the configured dataset.

The session keeps the dataset, layout, mapping and preview state between
commands, so rows can be edited, previewed, validated and exported
without reloading. Type .help inside the shell for the command list.`,
		Example: `  leapdoc shell --data clientes.csv --template carta.docx`,
		RunE:    runShell,
	}
}

func runShell(cmd *cobra.Command, _ []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	cfg := cmdCtx.Cfg
	if cfg.Template != "" || cfg.Layout == config.LayoutGenerated {
		if err := prepareLayout(ctx, cmdCtx); err != nil {
			cmdCtx.Renderer.Warning(fmt.Sprintf("layout not ready: %v", err))
		}
	}

	historyFile := ""
	if cfg.StatePath != "" {
		historyFile = filepath.Join(filepath.Dir(cfg.StatePath), "shell_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          shellPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newShellCompleter(cmdCtx.Engine.Columns()),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "LeapDoc shell (%d rows from %s)\n", cmdCtx.Engine.Dataset().Len(), cfg.Data)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	sh := &shell{cc: cmdCtx}
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		quit, err := sh.exec(ctx, line)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", serviceError(err))
		}
		if quit {
			break
		}
	}
	return nil
}

// shell executes dot-commands against a long-lived engine.
type shell struct {
	cc *CommandContext
}

// exec runs one input line. It reports whether the session should end.
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	args := parts[1:]
	eng, r := s.cc.Engine, s.cc.Renderer

	switch command {
	case ".quit", ".exit":
		return true, nil

	case ".help":
		printShellHelp(r.Writer())
		return false, nil

	case ".state":
		s.printState()
		return false, nil

	case ".row":
		if len(args) != 1 {
			return false, errors.New("usage: .row <n>")
		}
		row, err := s.row(args[0])
		if err != nil {
			return false, err
		}
		if err := eng.SelectRow(row); err != nil {
			return false, err
		}
		return false, s.preview(ctx)

	case ".bulk":
		if err := eng.ShowBulk(); err != nil {
			return false, err
		}
		return false, s.renderAll(ctx)

	case ".toggle":
		if err := eng.ToggleGranularity(); err != nil {
			return false, err
		}
		if eng.State().Granularity() == core.GranularityBulk {
			return false, s.renderAll(ctx)
		}
		return false, s.preview(ctx)

	case ".edit":
		if len(args) < 2 {
			return false, errors.New("usage: .edit <row> <column> [value]")
		}
		row, err := s.row(args[0])
		if err != nil {
			return false, err
		}
		if err := eng.EditCell(row, args[1], strings.Join(args[2:], " ")); err != nil {
			return false, err
		}
		r.Success(fmt.Sprintf("Row %d updated", row+1))
		if active, ok := eng.State().Active(); ok && active == row && eng.State().Granularity() == core.GranularitySingle {
			return false, s.preview(ctx)
		}
		return false, nil

	case ".map":
		if len(args) < 1 {
			return false, errors.New("usage: .map <field> [column]")
		}
		if err := eng.SetMapping(args[0], strings.Join(args[1:], " ")); err != nil {
			return false, err
		}
		return false, renderMapping(r, eng.Mapping())

	case ".confirm":
		if _, err := eng.ConfirmMapping(); err != nil {
			if m := eng.Mapping(); m != nil {
				_ = renderMapping(r, m)
			}
			return false, err
		}
		r.Success("Mapping confirmed")
		return false, nil

	case ".layout":
		return false, s.layout(ctx, args)

	case ".clear":
		if err := eng.ClearLayout(); err != nil {
			return false, err
		}
		r.Success("Layout cleared")
		return false, nil

	case ".validate":
		switch len(args) {
		case 0:
			return false, s.validate(ctx, eng.Validate)
		case 1:
			row, err := s.row(args[0])
			if err != nil {
				return false, err
			}
			return false, s.validate(ctx, func(ctx context.Context) ([]core.ValidationIssue, error) {
				return eng.ValidateRow(ctx, row)
			})
		default:
			return false, errors.New("usage: .validate [row]")
		}

	case ".hook":
		if len(args) != 1 {
			return false, errors.New("usage: .hook <id>")
		}
		target, ok := eng.Activate(args[0])
		if !ok {
			r.Warning(fmt.Sprintf("hook %s already used or unknown", args[0]))
			return false, nil
		}
		value, err := eng.Dataset().Value(target.Row, target.Column)
		if err != nil {
			return false, err
		}
		r.KeyValue("Row", strconv.Itoa(target.Row+1))
		r.KeyValue("Column", target.Column)
		r.KeyValue("Value", value)
		return false, nil

	case ".export":
		cfg := s.cc.Cfg
		location, res, err := eng.Archive(ctx, archive.FileSink{Dir: cfg.Export.Dir}, cfg.Export.ArchiveName)
		if location != "" && res != nil {
			r.Success(fmt.Sprintf("Exported %d documents to %s", len(res.Entries), location))
		}
		return false, err

	case ".analyze":
		report, err := eng.Analyze(ctx)
		if err != nil {
			return false, err
		}
		if err := r.Fragment("Summary", report.SummaryHTML); err != nil {
			return false, err
		}
		rows := make([][]string, len(report.Chart))
		for i, b := range report.Chart {
			rows[i] = []string{b.Label, formatValue(b.Value), bar(b.Percent)}
		}
		if len(rows) > 0 {
			r.Table([]string{"Label", "Value", ""}, rows)
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (type .help for commands)", command)
	}
}

func (s *shell) row(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid row %q", arg)
	}
	return parseRow(n, s.cc.Engine.Dataset().Len())
}

func (s *shell) preview(ctx context.Context) error {
	f, err := s.cc.Engine.RenderActive(ctx)
	if errors.Is(err, core.ErrStaleResult) {
		return nil
	}
	if werr := writeFragments(s.cc.Renderer, []core.Fragment{f}, false); werr != nil {
		return werr
	}
	return err
}

func (s *shell) renderAll(ctx context.Context) error {
	res, err := s.cc.Engine.RenderAll(ctx, nil)
	if res != nil {
		if werr := writeFragments(s.cc.Renderer, res.Fragments, false); werr != nil {
			return werr
		}
	}
	return err
}

func (s *shell) layout(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: .layout template|generated [instructions]")
	}
	eng, cfg := s.cc.Engine, s.cc.Cfg
	switch args[0] {
	case "template":
		path := cfg.Template
		if len(args) > 1 {
			path = strings.Join(args[1:], " ")
		}
		if path == "" {
			return errors.New("no template configured\nHint: .layout template <path>")
		}
		c, err := openTemplate(path)
		if err != nil {
			return err
		}
		m, err := eng.UseTemplate(ctx, c)
		if err != nil {
			return err
		}
		return renderMapping(s.cc.Renderer, m)
	case "generated":
		if err := eng.UseGenerated(strings.Join(args[1:], " ")); err != nil {
			return err
		}
		s.cc.Renderer.Success("Generated layout selected")
		return nil
	default:
		return fmt.Errorf("unknown layout %q", args[0])
	}
}

func (s *shell) validate(ctx context.Context, run func(context.Context) ([]core.ValidationIssue, error)) error {
	eng, r := s.cc.Engine, s.cc.Renderer
	issues, err := run(ctx)
	if issues == nil && err != nil {
		return err
	}
	res, oerr := eng.Overlay()
	if oerr != nil {
		return oerr
	}
	if res.Clean {
		r.Success("No issues")
		return err
	}

	rows := make([][]string, 0, len(res.Highlights)+len(res.Unmarked))
	for _, h := range res.Highlights {
		rows = append(rows, []string{strconv.Itoa(h.Row + 1), h.Field, h.Hook})
	}
	for _, is := range res.Unmarked {
		rows = append(rows, []string{strconv.Itoa(is.Row + 1), is.Field, ""})
	}
	r.Table([]string{"Row", "Field", "Hook"}, rows)
	for _, is := range res.Unresolved {
		r.Warning(fmt.Sprintf("row %d: field %q matches no column", is.Row+1, is.Field))
	}
	return err
}

func (s *shell) printState() {
	eng, r := s.cc.Engine, s.cc.Renderer
	st := eng.State()
	r.KeyValue("Phase", st.Phase.String())
	r.KeyValue("Rows", strconv.Itoa(eng.Dataset().Len()))
	if st.Layout != "" {
		r.KeyValue("Layout", string(st.Layout))
	}
	if g := st.Granularity(); g != "" {
		r.KeyValue("Preview", string(g))
	}
	if row, ok := st.Active(); ok {
		r.KeyValue("Active row", strconv.Itoa(row+1))
	}
	if st.MappingRequired {
		r.KeyValue("Mapping confirmed", strconv.FormatBool(st.MappingConfirmed))
	}
}

func printShellHelp(w io.Writer) {
	help := `
Commands:
  .state                      Show the session state
  .row <n>                    Preview row n
  .bulk                       Render every row
  .toggle                     Switch between single and bulk preview
  .edit <row> <col> [value]   Change a cell
  .layout template [path]     Use a template layout
  .layout generated [text]    Use a generated layout
  .map <field> [column]       Map a template field (no column unmaps)
  .confirm                    Confirm the mapping
  .clear                      Clear the layout
  .validate [row]             Validate one row, or every row
  .hook <id>                  Jump to the cell behind an issue marker
  .export                     Write the document archive
  .analyze                    Summarize the dataset
  .quit / .exit               Exit the shell

Tips:
  - Rows are numbered from 1
  - Tab completion works for commands and column names
`
	_, _ = fmt.Fprintln(w, help)
}

// newShellCompleter completes dot-commands and column names.
func newShellCompleter(columns []string) *readline.PrefixCompleter {
	cols := make([]readline.PrefixCompleterInterface, len(columns))
	for i, c := range columns {
		cols[i] = readline.PcItem(c)
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".state"),
		readline.PcItem(".row"),
		readline.PcItem(".bulk"),
		readline.PcItem(".toggle"),
		readline.PcItem(".edit"),
		readline.PcItem(".layout",
			readline.PcItem("template"),
			readline.PcItem("generated"),
		),
		readline.PcItem(".map", cols...),
		readline.PcItem(".confirm"),
		readline.PcItem(".clear"),
		readline.PcItem(".validate"),
		readline.PcItem(".hook"),
		readline.PcItem(".export"),
		readline.PcItem(".analyze"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
