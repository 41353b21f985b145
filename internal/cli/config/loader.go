package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// envPrefix prefixes every environment variable. Nested keys use a double
// underscore: LEAPDOC_GENERATION__MODEL -> generation.model.
const envPrefix = "LEAPDOC_"

var configNames = []string{"leapdoc.yaml", "leapdoc.yml"}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flag names whose config key differs from the snake_case name.
var flagKeys = map[string]string{
	"state":        "state_path",
	"mapping":      "mapping_file",
	"model":        "generation.model",
	"api-key":      "generation.api_key",
	"secret":       "generation.secret",
	"spacing":      "generation.spacing",
	"policy":       "mapping.policy",
	"suggest":      "mapping.suggest",
	"halt":         "render.halt_on_error",
	"concurrency":  "validation.concurrency",
	"export-dir":   "export.dir",
	"archive-name": "export.archive_name",
	"gcs-bucket":   "export.gcs_bucket",
	"gcs-prefix":   "export.gcs_prefix",
	"port":         "ui.port",
	"watch":        "ui.watch",
}

// configExistsIn returns the config file in dir, or "".
func configExistsIn(dir string) string {
	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a leapdoc config file.
func findConfigUpward(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if found := configExistsIn(dir); found != "" {
			return found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || path == ":memory:" {
		return path
	}
	return filepath.Join(baseDir, path)
}

func defaults() map[string]any {
	return map[string]any{
		"delimiter":              DefaultDelimiter,
		"state_path":             DefaultStateFile,
		"verbose":                false,
		"output":                 DefaultOutput,
		"log_format":             DefaultLogFormat,
		"generation.model":       DefaultModel,
		"generation.api_key_env": DefaultAPIKeyEnv,
		"generation.spacing":     DefaultSpacing.String(),
		"generation.timeout":     DefaultTimeout.String(),
		"mapping.policy":         DefaultPolicy,
		"mapping.suggest":        DefaultSuggest,
		"render.halt_on_error":   true,
		"validation.concurrency": DefaultConcurrency,
		"export.dir":             DefaultExportDir,
		"export.archive_name":    DefaultArchiveName,
		"ui.port":                DefaultUIPort,
		"ui.watch":               true,
	}
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		cwd = "."
	}

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file: explicit, else searched upward from CWD
	configFileUsed = cfgFile
	if configFileUsed == "" {
		configFileUsed = findConfigUpward(cwd)
	}
	projectRoot := cwd
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
		if abs, err := filepath.Abs(configFileUsed); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	// 3. Environment
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags. Paths given on the command line are relative to CWD, so
	// they are made absolute before project-root resolution.
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := flagKey(f.Name)
			if !isConfigKey(key) {
				return "", nil
			}
			val := posflag.FlagVal(flags, f)
			if isPathKey(key) {
				if s, ok := val.(string); ok && s != "" && s != ":memory:" {
					if abs, err := filepath.Abs(s); err == nil {
						val = abs
					}
				}
			}
			return key, val
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Decode
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve paths against the project root
	cfg.ProjectRoot = projectRoot
	for _, p := range []*string{&cfg.Data, &cfg.Template, &cfg.MappingFile, &cfg.StatePath, &cfg.Export.Dir} {
		*p = resolvePathRelativeTo(*p, projectRoot)
	}

	expandSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	currentConfig = &cfg
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

// topLevelKeys are the scalar keys at the root of the configuration.
var topLevelKeys = map[string]bool{
	"data": true, "delimiter": true, "sheet": true, "template": true,
	"mapping_file": true, "layout": true, "instructions": true,
	"name_column": true, "state_path": true, "verbose": true,
	"output": true, "log_format": true,
}

// isConfigKey reports whether a flag feeds the configuration. Command
// options such as validate --render stay with their command.
func isConfigKey(key string) bool {
	return topLevelKeys[key] || strings.Contains(key, ".")
}

func isPathKey(key string) bool {
	switch key {
	case "data", "template", "mapping_file", "state_path", "export.dir":
		return true
	}
	return false
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.New(slog.DiscardHandler)
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandSecrets expands environment references in sensitive fields.
func expandSecrets(c *Config) {
	c.Generation.APIKey = expandEnvVars(c.Generation.APIKey)
	c.Generation.Secret = expandEnvVars(c.Generation.Secret)
	c.UI.SessionSecret = expandEnvVars(c.UI.SessionSecret)
	c.Export.GCSBucket = expandEnvVars(c.Export.GCSBucket)
}
