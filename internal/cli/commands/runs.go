package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/leapstack-labs/leapdoc/internal/state"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/spf13/cobra"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show the history of bulk renders, exports and validations",
		Long: `List recent runs recorded in the state file, newest first.

Given a run id, show the outcome of every row in that run and the
validation issues it recorded.`,
		Example: `  # Recent runs
  leapdoc runs

  # Detail of one run
  leapdoc runs 3f0c2a9e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runRunDetail(cmd, args[0])
			}
			return runRunList(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Number of runs to list")

	return cmd
}

// RunOutput is a run in JSON output.
type RunOutput struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Layout      string     `json:"layout"`
	Rows        int        `json:"rows"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// RowRunOutput is one row of a run in JSON output.
type RowRunOutput struct {
	Row        int    `json:"row"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func toRunOutput(r *core.Run) RunOutput {
	return RunOutput{
		ID:          r.ID,
		Kind:        string(r.Kind),
		Layout:      r.Layout.String(),
		Rows:        r.Rows,
		Status:      string(r.Status),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Error:       r.Error,
	}
}

func openHistory(cmdCtx *CommandContext) (*state.SQLiteStore, error) {
	if cmdCtx.Cfg.StatePath == "" {
		return nil, errors.New("run history is disabled\nHint: set state_path in leapdoc.yaml")
	}
	store := state.NewSQLiteStore(cmdCtx.Logger)
	if err := store.Open(cmdCtx.Cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize run history: %w", err)
	}
	return store, nil
}

func runRunList(cmd *cobra.Command, opts *RunsOptions) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	store, err := openHistory(cmdCtx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(opts.Limit)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]RunOutput, len(runs))
		for i, run := range runs {
			out[i] = toRunOutput(run)
		}
		return r.JSON(out)
	}

	if len(runs) == 0 {
		r.Println("No runs recorded yet.")
		return nil
	}
	r.Header(1, "Runs")
	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			run.ID,
			string(run.Kind),
			run.Layout.String(),
			fmt.Sprintf("%d", run.Rows),
			string(run.Status),
			run.StartedAt.Local().Format(time.DateTime),
		}
	}
	r.Table([]string{"ID", "Kind", "Layout", "Rows", "Status", "Started"}, rows)
	return nil
}

func runRunDetail(cmd *cobra.Command, id string) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	store, err := openHistory(cmdCtx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %q not found", id)
	}
	rowRuns, err := store.GetRowRunsForRun(id)
	if err != nil {
		return err
	}
	issues, err := store.GetIssuesForRun(id)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]RowRunOutput, len(rowRuns))
		for i, rr := range rowRuns {
			out[i] = RowRunOutput{Row: rr.Row + 1, Status: string(rr.Status), DurationMS: rr.DurationMS, Error: rr.Error}
		}
		return r.JSON(map[string]any{"run": toRunOutput(run), "rows": out, "issues": issues})
	}

	r.Header(1, fmt.Sprintf("Run %s", run.ID))
	r.KeyValue("Kind", string(run.Kind))
	r.KeyValue("Layout", run.Layout.String())
	r.KeyValue("Status", string(run.Status))
	r.KeyValue("Started", run.StartedAt.Local().Format(time.DateTime))
	if run.Error != "" {
		r.KeyValue("Error", run.Error)
	}

	if len(rowRuns) > 0 {
		r.Println("")
		rows := make([][]string, len(rowRuns))
		for i, rr := range rowRuns {
			rows[i] = []string{fmt.Sprintf("%d", rr.Row+1), string(rr.Status), fmt.Sprintf("%dms", rr.DurationMS), rr.Error}
		}
		r.Table([]string{"Row", "Status", "Duration", "Error"}, rows)
	}
	if len(issues) > 0 {
		r.Println("")
		r.Header(2, "Issues")
		rows := make([][]string, len(issues))
		for i, is := range issues {
			rows[i] = []string{fmt.Sprintf("%d", is.Row+1), is.Field, is.Message}
		}
		r.Table([]string{"Row", "Field", "Issue"}, rows)
	}
	return nil
}
