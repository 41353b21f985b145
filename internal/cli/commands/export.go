package commands

import (
	"fmt"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/leapstack-labs/leapdoc/internal/archive"
	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/spf13/cobra"
)

// ExportOptions holds options for the export command.
type ExportOptions struct {
	Dataset string
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one document per row as a zip archive",
		Long: `Render every row and package the documents into a zip archive.

Template layouts export the filled template in its own format; generated
layouts export standalone HTML pages. Documents are named after the
name_column value of each row, falling back to documento_N.

The archive is written to export.dir, or uploaded to Cloud Storage when
export.gcs_bucket is set. --dataset also writes the (possibly edited)
dataset as CSV or XLSX.`,
		Example: `  # Export to ./export/documentos.zip
  leapdoc export --name-column Nome

  # Upload to a bucket
  leapdoc export --gcs-bucket contratos --gcs-prefix 2024/

  # Also save the edited dataset
  leapdoc export --dataset dados_editados.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().String("export-dir", "", "Directory for the archive (default: export)")
	cmd.Flags().String("archive-name", "", "Archive file name (default: documentos.zip)")
	cmd.Flags().String("gcs-bucket", "", "Upload the archive to this Cloud Storage bucket")
	cmd.Flags().String("gcs-prefix", "", "Object name prefix inside the bucket")
	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "Also write the dataset to this CSV or XLSX file")

	return cmd
}

// ExportOutput is the JSON output of the export command.
type ExportOutput struct {
	Location  string   `json:"location"`
	RunID     string   `json:"run_id,omitempty"`
	Documents []string `json:"documents"`
	Failed    []int    `json:"failed,omitempty"`
	Dataset   string   `json:"dataset,omitempty"`
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	cfg, eng, r := cmdCtx.Cfg, cmdCtx.Engine, cmdCtx.Renderer
	if err := prepareLayout(ctx, cmdCtx); err != nil {
		return err
	}

	var sink archive.Sink = archive.FileSink{Dir: cfg.Export.Dir}
	if cfg.Export.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		defer func() { _ = client.Close() }()
		gcs, err := archive.NewGCSSink(client, cfg.Export.GCSBucket, cfg.Export.GCSPrefix)
		if err != nil {
			return err
		}
		sink = gcs
	}

	location, res, exportErr := eng.Archive(ctx, sink, cfg.Export.ArchiveName)

	out := ExportOutput{Location: location}
	if res != nil {
		out.RunID = res.RunID
		out.Failed = make([]int, len(res.Failed))
		for i, row := range res.Failed {
			out.Failed[i] = row + 1
		}
		for _, e := range res.Entries {
			out.Documents = append(out.Documents, e.Name)
		}
	}

	if opts.Dataset != "" {
		path, err := filepath.Abs(opts.Dataset)
		if err != nil {
			return err
		}
		if err := eng.SaveDataset(path, datasetOptions(cfg)); err != nil {
			return err
		}
		out.Dataset = path
	}

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return err
		}
		return exportErr
	}

	if location != "" {
		r.Success(fmt.Sprintf("Exported %d documents to %s", len(out.Documents), location))
	}
	for _, row := range out.Failed {
		r.StatusLine(fmt.Sprintf("Documento %d", row), "failed", "not exported")
	}
	if out.Dataset != "" {
		r.Success(fmt.Sprintf("Dataset saved to %s", out.Dataset))
	}
	return exportErr
}
