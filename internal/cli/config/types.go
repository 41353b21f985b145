// Package config provides configuration management for the leapdoc CLI.
//
// Values come from defaults, a leapdoc.yaml file, LEAPDOC_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"time"

	"github.com/leapstack-labs/leapdoc/internal/validation"
)

// Config holds all CLI configuration options.
type Config struct {
	// Data is the CSV or XLSX dataset.
	Data      string `koanf:"data"`
	Delimiter string `koanf:"delimiter"`
	Sheet     string `koanf:"sheet"`
	// Template is the HTML or DOCX template. Empty selects the generated layout.
	Template     string `koanf:"template"`
	MappingFile  string `koanf:"mapping_file"`
	Layout       string `koanf:"layout"`
	Instructions string `koanf:"instructions"`
	NameColumn   string `koanf:"name_column"`
	StatePath    string `koanf:"state_path"`
	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`
	LogFormat    string `koanf:"log_format"`

	Generation GenerationConfig `koanf:"generation"`
	Mapping    MappingConfig    `koanf:"mapping"`
	Render     RenderConfig     `koanf:"render"`
	Validation ValidationConfig `koanf:"validation"`
	Export     ExportConfig     `koanf:"export"`
	UI         UIConfig         `koanf:"ui"`

	// ProjectRoot is the directory relative paths resolve against.
	ProjectRoot string `koanf:"-"`
}

// GenerationConfig configures the generation service.
type GenerationConfig struct {
	Model string `koanf:"model"`
	// APIKey may reference an environment variable as ${VAR}.
	APIKey    string `koanf:"api_key"`
	APIKeyEnv string `koanf:"api_key_env"`
	// Secret is a Secret Manager resource name holding the key.
	Secret  string        `koanf:"secret"`
	Spacing time.Duration `koanf:"spacing"`
	Timeout time.Duration `koanf:"timeout"`
}

// MappingConfig configures field mapping.
type MappingConfig struct {
	Policy  string `koanf:"policy"`
	Suggest string `koanf:"suggest"`
}

// RenderConfig configures bulk rendering.
type RenderConfig struct {
	HaltOnError bool `koanf:"halt_on_error"`
}

// ValidationConfig configures row validation.
type ValidationConfig struct {
	Concurrency int               `koanf:"concurrency"`
	Rules       []validation.Rule `koanf:"rules"`
	// Prompt holds free-text rules sent along with service validation.
	Prompt string `koanf:"prompt"`
}

// ExportConfig configures document export.
type ExportConfig struct {
	Dir         string `koanf:"dir"`
	ArchiveName string `koanf:"archive_name"`
	GCSBucket   string `koanf:"gcs_bucket"`
	GCSPrefix   string `koanf:"gcs_prefix"`
}

// UIConfig holds configuration for the preview server.
type UIConfig struct {
	Port          int    `koanf:"port"`
	Watch         bool   `koanf:"watch"`
	SessionSecret string `koanf:"session_secret"`
}

// Default configuration values.
const (
	DefaultStateFile   = ".leapdoc/state.db"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogFormat   = "text"
	DefaultDelimiter   = ";"
	DefaultModel       = "gemini-2.5-flash"
	DefaultAPIKeyEnv   = "GEMINI_API_KEY"
	DefaultSpacing     = 500 * time.Millisecond
	DefaultTimeout     = 60 * time.Second
	DefaultPolicy      = "strict"
	DefaultSuggest     = "service"
	DefaultConcurrency = 4
	DefaultExportDir   = "export"
	DefaultArchiveName = "documentos.zip"
	DefaultUIPort      = 8765
)

// Layout values.
const (
	LayoutAuto      = ""
	LayoutTemplate  = "template"
	LayoutGenerated = "generated"
)
