package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapdoc/internal/cli/config"
	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/leapstack-labs/leapdoc/internal/container"
	"github.com/leapstack-labs/leapdoc/internal/credential"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/engine"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/internal/mapping"
	"github.com/leapstack-labs/leapdoc/internal/pipeline"
	"github.com/leapstack-labs/leapdoc/internal/state"
	"github.com/leapstack-labs/leapdoc/internal/validation"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg        *config.Config
	Logger     *slog.Logger
	Engine     *engine.Engine
	Credential *credential.Holder
	Store      *state.SQLiteStore
	Renderer   *output.Renderer
}

// NewCommandContext creates a CommandContext with the run history store,
// the credential holder and an engine with the configured dataset loaded.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	if err := cfg.ValidateData(); err != nil {
		return nil, nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if store != nil {
			_ = store.Close()
		}
	}

	holder := newCredential(cfg, logger)
	eng, err := createEngine(cfg, logger, holder, store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if _, err := eng.LoadFile(cfg.Data, datasetOptions(cfg)); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if len(cfg.Validation.Rules) > 0 {
		v, err := buildValidator(cmd.Context(), cfg, holder, eng.Columns())
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		eng.SetValidator(v)
	}

	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:        cfg,
		Logger:     logger,
		Engine:     eng,
		Credential: holder,
		Store:      store,
		Renderer:   r,
	}, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that need no dataset.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	return &config.Config{
		Data:         os.Getenv("LEAPDOC_DATA"),
		Delimiter:    getEnvOrDefault("LEAPDOC_DELIMITER", config.DefaultDelimiter),
		Template:     os.Getenv("LEAPDOC_TEMPLATE"),
		StatePath:    getEnvOrDefault("LEAPDOC_STATE_PATH", config.DefaultStateFile),
		Verbose:      os.Getenv("LEAPDOC_VERBOSE") == "true",
		OutputFormat: os.Getenv("LEAPDOC_OUTPUT"),
		Generation: config.GenerationConfig{
			Model:     config.DefaultModel,
			APIKeyEnv: config.DefaultAPIKeyEnv,
			Spacing:   config.DefaultSpacing,
			Timeout:   config.DefaultTimeout,
		},
		Render:     config.RenderConfig{HaltOnError: true},
		Validation: config.ValidationConfig{Concurrency: config.DefaultConcurrency},
		Export:     config.ExportConfig{Dir: config.DefaultExportDir, ArchiveName: config.DefaultArchiveName},
		UI:         config.UIConfig{Port: config.DefaultUIPort, Watch: true},
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func datasetOptions(cfg *config.Config) dataset.Options {
	delim, err := dataset.ParseDelimiter(cfg.Delimiter)
	if err != nil {
		delim = dataset.DefaultDelimiter
	}
	return dataset.Options{Delimiter: delim, Sheet: cfg.Sheet}
}

// openStore opens the run history. A failure is logged and history is
// disabled; it never blocks document work.
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	if cfg.StatePath == "" {
		return nil, nil
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		logger.Warn("run history disabled", "path", cfg.StatePath, "error", err)
		return nil, nil
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize run history: %w", err)
	}
	return store, nil
}

// newCredential builds the credential holder. Keys are looked up in order:
// the configured key, the configured environment variable, then Secret
// Manager.
func newCredential(cfg *config.Config, logger *slog.Logger) *credential.Holder {
	var chain credential.Chain
	if key := strings.TrimSpace(cfg.Generation.APIKey); key != "" && !strings.HasPrefix(key, "${") {
		chain = append(chain, credential.Static(key))
	}
	if cfg.Generation.APIKeyEnv != "" {
		chain = append(chain, credential.Env(cfg.Generation.APIKeyEnv))
	}
	if cfg.Generation.Secret != "" {
		chain = append(chain, credential.SecretManager{Name: cfg.Generation.Secret})
	}

	var source credential.Source
	if len(chain) > 0 {
		source = chain
	}
	return credential.NewHolder(source, credential.GeminiFactory(genai.GeminiConfig{
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout,
		Logger:  logger,
	}), logger)
}

func createEngine(cfg *config.Config, logger *slog.Logger, holder *credential.Holder, store *state.SQLiteStore) (*engine.Engine, error) {
	policy, err := mapping.ParsePolicy(cfg.Mapping.Policy)
	if err != nil {
		return nil, err
	}

	var suggester mapping.Suggester
	switch cfg.Mapping.Suggest {
	case "heuristic":
		suggester = mapping.HeuristicSuggester{}
	case "none":
		suggester = mapping.NoSuggester{}
	default:
		suggester = mapping.ServiceSuggester{Generator: holder}
	}

	onError := pipeline.Halt
	if !cfg.Render.HaltOnError {
		onError = pipeline.Continue
	}

	engineCfg := engine.Config{
		Generator:    holder,
		Suggester:    suggester,
		Policy:       policy,
		Validator:    validation.ServiceValidator{Generator: holder, Rules: cfg.Validation.Prompt},
		Concurrency:  cfg.Validation.Concurrency,
		Spacing:      cfg.Generation.Spacing,
		OnError:      onError,
		Instructions: cfg.Instructions,
		NameColumn:   cfg.NameColumn,
		Logger:       logger,
	}
	if store != nil {
		engineCfg.Store = store
	}
	return engine.New(engineCfg)
}

// buildValidator combines the configured local rules with service
// validation when a credential is available.
func buildValidator(ctx context.Context, cfg *config.Config, holder *credential.Holder, columns []string) (validation.Validator, error) {
	rules, err := validation.NewRuleValidator(cfg.Validation.Rules, columns)
	if err != nil {
		return nil, fmt.Errorf("invalid validation rules: %w", err)
	}
	if holder != nil && holder.Available(ctx) {
		return validation.Chain{rules, validation.ServiceValidator{Generator: holder, Rules: cfg.Validation.Prompt}}, nil
	}
	return rules, nil
}

// prepareLayout selects the configured layout. Template layouts get their
// mapping from the mapping file when configured, otherwise from the
// suggester, and are confirmed under the configured policy.
func prepareLayout(ctx context.Context, cc *CommandContext) error {
	if cc.Cfg.EffectiveLayout() == config.LayoutGenerated {
		return cc.Engine.UseGenerated(cc.Cfg.Instructions)
	}

	c, err := openTemplate(cc.Cfg.Template)
	if err != nil {
		return err
	}
	if _, err := cc.Engine.UseTemplate(ctx, c); err != nil {
		return err
	}
	if cc.Cfg.MappingFile != "" {
		m, err := mapping.Load(cc.Cfg.MappingFile)
		if err != nil {
			return fmt.Errorf("failed to load mapping: %w", err)
		}
		if err := cc.Engine.UseMapping(m); err != nil {
			return err
		}
	}
	if _, err := cc.Engine.ConfirmMapping(); err != nil {
		if errors.Is(err, core.ErrMappingIncomplete) {
			return fmt.Errorf("%w\nHint: run 'leapdoc map' to review the mapping", err)
		}
		return err
	}
	return nil
}

func openTemplate(path string) (container.Container, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user's configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return container.Open(filepath.Base(path), data)
}

// parseRow converts a 1-based row flag to an index.
func parseRow(row, total int) (int, error) {
	if row < 1 || row > total {
		return 0, fmt.Errorf("row %d out of range (1-%d)", row, total)
	}
	return row - 1, nil
}

// serviceError prefixes credential and quota failures with a message the
// user can act on.
func serviceError(err error) error {
	if errors.Is(err, core.ErrServiceAuthOrQuota) || errors.Is(err, core.ErrNoCredential) {
		return fmt.Errorf("%s: %w", genai.UserMessage(err), err)
	}
	return err
}
