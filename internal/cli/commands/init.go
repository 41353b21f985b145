package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new LeapDoc project",
		Long: `Initialize a new LeapDoc project with a default configuration.

This creates:
  - leapdoc.yaml configuration file
  - .gitignore for the run history and exports

Use --example to create a working demo with a dataset, an HTML receipt
template, a saved field mapping and validation rules.`,
		Example: `  # Initialize in current directory
  leapdoc init

  # Initialize with a full working example
  leapdoc init --example

  # Initialize in a new directory
  leapdoc init recibos --example

  # Force overwrite existing config
  leapdoc init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			mode := output.Mode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			if example {
				return runInitExample(r, dir, force)
			}
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create an example project with data, template and mapping")

	return cmd
}

// prepareInitDir creates dir and refuses to overwrite an existing
// configuration unless forced.
func prepareInitDir(dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "leapdoc.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("leapdoc.yaml already exists. Use --force to overwrite")
	}
	return nil
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := prepareInitDir(dir, force); err != nil {
		return err
	}

	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("LeapDoc project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Point data: in leapdoc.yaml at your CSV or XLSX file")
	r.Println("  2. Set template: to an HTML or DOCX file, or leave it empty")
	r.Println("  3. Run 'leapdoc map' to review the field mapping")
	r.Println("  4. Run 'leapdoc serve' to open the workspace")

	return nil
}

func runInitExample(r *output.Renderer, dir string, force bool) error {
	if err := prepareInitDir(dir, force); err != nil {
		return err
	}

	if err := copyTemplate("example", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("example")
	groups := groupTemplateFiles(files)

	r.Header(2, "Configuration")
	for _, f := range groups["config"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Header(2, "Data")
	for _, f := range groups["data"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Header(2, "Templates")
	for _, f := range groups["templates"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("LeapDoc project initialized with example data!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  leapdoc map        Review the field mapping")
	r.Println("  leapdoc validate   Check the dataset against the rules")
	r.Println("  leapdoc render     Preview the first receipt")
	r.Println("  leapdoc export     Write one receipt per row")

	return nil
}
