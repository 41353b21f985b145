package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/spf13/cobra"
)

// barWidth is the width of a full chart bar in cells.
const barWidth = 30

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Summarise the dataset with the generation service",
		Long: `Send a sample of the dataset to the generation service and print a
short summary with a chart of up to five values.

Only the first rows are sampled; the summary states how many.`,
		Example: `  # Summarise the configured dataset
  leapdoc analyze

  # Machine-readable report
  leapdoc analyze --output json`,
		RunE: runAnalyze,
	}
	return cmd
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	report, err := cmdCtx.Engine.Analyze(cmd.Context())
	if err != nil {
		return serviceError(err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(report)
	}

	r.Header(1, "Dataset Analysis")
	if err := r.Fragment("Summary", report.SummaryHTML); err != nil {
		return err
	}
	r.Println("")
	r.KeyValue("Sampled rows", fmt.Sprintf("%d of %d", report.Sampled, report.Total))

	if len(report.Chart) == 0 {
		return nil
	}
	r.Println("")
	rows := make([][]string, len(report.Chart))
	for i, b := range report.Chart {
		rows[i] = []string{b.Label, formatValue(b.Value), bar(b.Percent)}
	}
	r.Table([]string{"Label", "Value", ""}, rows)
	return nil
}

func bar(percent float64) string {
	n := int(percent / 100 * barWidth)
	if n < 1 && percent > 0 {
		n = 1
	}
	return strings.Repeat("█", n)
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
