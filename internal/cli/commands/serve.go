package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/leapstack-labs/leapdoc/internal/cli/config"
	"github.com/leapstack-labs/leapdoc/internal/ui"
	"github.com/spf13/cobra"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Port      int
	NoBrowser bool
	Watch     bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"ui"},
		Short:   "Start the browser workspace",
		Long: `Start a local web server with the interactive document workspace.

The workspace provides:
- Dataset upload, grid editing and export
- Template upload with placeholder mapping
- Generated layouts from free-text instructions
- Single-row and bulk previews with streaming generation
- Validation with issue highlighting
- Data analysis charts
- Run history

The configured dataset and template are loaded on start and reloaded
when they change on disk.`,
		Example: `  # Start on the default port with a dataset
  leapdoc serve --data clientes.csv

  # Start on a custom port
  leapdoc serve --port 3000

  # Start without auto-opening the browser
  leapdoc serve --no-browser`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: 8765)")
	cmd.Flags().BoolVar(&opts.NoBrowser, "no-browser", false, "Don't auto-open browser")
	cmd.Flags().BoolVar(&opts.Watch, "watch", true, "Reload the dataset and template when they change")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	// CLI flags override config file
	port := cfg.UI.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	watch := cfg.UI.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.Watch
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	holder := newCredential(cfg, logger)
	eng, err := createEngine(cfg, logger, holder, store)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// The workspace starts empty when no dataset is configured.
	if cfg.Data != "" {
		if err := cfg.ValidateData(); err != nil {
			return err
		}
		if _, err := eng.LoadFile(cfg.Data, datasetOptions(cfg)); err != nil {
			return fmt.Errorf("failed to load dataset: %w", err)
		}
		if len(cfg.Validation.Rules) > 0 {
			v, err := buildValidator(cmd.Context(), cfg, holder, eng.Columns())
			if err != nil {
				return err
			}
			eng.SetValidator(v)
		}
		if cfg.Template != "" || cfg.Layout == config.LayoutGenerated {
			cc := &CommandContext{Cfg: cfg, Logger: logger, Engine: eng, Credential: holder, Store: store}
			if err := prepareLayout(cmd.Context(), cc); err != nil {
				logger.Warn("layout not ready, finish it in the workspace", "error", err)
			}
		}
	}

	serverCfg := ui.Config{
		Engine:        eng,
		Credential:    holder,
		Port:          port,
		Watch:         watch,
		DataPath:      cfg.Data,
		TemplatePath:  cfg.Template,
		Dataset:       datasetOptions(cfg),
		SessionSecret: sessionSecret(cfg),
		ArchiveName:   cfg.Export.ArchiveName,
		Logger:        logger,
	}
	if store != nil {
		serverCfg.Store = store
	}

	server := ui.NewServer(serverCfg)

	if !opts.NoBrowser {
		url := fmt.Sprintf("http://localhost:%d", port)
		go openBrowser(url)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting workspace on http://localhost:%d\n", port)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	return server.Serve(ctx)
}

// sessionSecret returns the cookie secret: the configured one, then
// LEAPDOC_SESSION_SECRET. Empty means per-process random keys.
func sessionSecret(cfg *config.Config) string {
	if cfg.UI.SessionSecret != "" {
		return cfg.UI.SessionSecret
	}
	return os.Getenv("LEAPDOC_SESSION_SECRET")
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
