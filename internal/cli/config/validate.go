package config

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/mapping"
)

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("output must be one of auto, text, markdown, json: got %q", c.OutputFormat)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json: got %q", c.LogFormat)
	}
	switch c.Layout {
	case LayoutAuto, LayoutTemplate, LayoutGenerated:
	default:
		return fmt.Errorf("layout must be template or generated: got %q", c.Layout)
	}
	if c.Layout == LayoutTemplate && c.Template == "" {
		return fmt.Errorf("layout template requires a template file")
	}
	if _, err := mapping.ParsePolicy(c.Mapping.Policy); err != nil {
		return err
	}
	switch c.Mapping.Suggest {
	case "", "service", "heuristic", "none":
	default:
		return fmt.Errorf("mapping.suggest must be service, heuristic or none: got %q", c.Mapping.Suggest)
	}
	if c.Delimiter != "" {
		if _, err := dataset.ParseDelimiter(c.Delimiter); err != nil {
			return err
		}
	}
	if c.Validation.Concurrency < 0 {
		return fmt.Errorf("validation.concurrency must not be negative")
	}
	if c.Generation.Spacing < 0 || c.Generation.Timeout < 0 {
		return fmt.Errorf("generation durations must not be negative")
	}
	if c.UI.Port < 0 || c.UI.Port > 65535 {
		return fmt.Errorf("ui.port out of range: %d", c.UI.Port)
	}
	return nil
}

// ValidateData checks that the dataset file exists.
func (c *Config) ValidateData() error {
	if c.Data == "" {
		return fmt.Errorf("no dataset configured\nHint: pass --data or set data in leapdoc.yaml")
	}
	if _, err := os.Stat(c.Data); os.IsNotExist(err) {
		return fmt.Errorf("dataset does not exist: %s", c.Data)
	}
	return nil
}

// EffectiveLayout resolves the layout, inferring it from the template.
func (c *Config) EffectiveLayout() string {
	if c.Layout != LayoutAuto {
		return c.Layout
	}
	if c.Template != "" {
		return LayoutTemplate
	}
	return LayoutGenerated
}
