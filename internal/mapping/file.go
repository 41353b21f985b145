package mapping

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk representation of a mapping.
type fileFormat struct {
	Version   int         `yaml:"version"`
	Confirmed bool        `yaml:"confirmed"`
	Fields    []fileEntry `yaml:"fields"`
}

type fileEntry struct {
	Field  string `yaml:"field"`
	Column string `yaml:"column,omitempty"`
}

// Marshal encodes m as YAML.
func Marshal(m *Mapping) ([]byte, error) {
	ff := fileFormat{Version: 1, Confirmed: m.confirmed}
	for _, f := range m.fields {
		ff.Fields = append(ff.Fields, fileEntry{Field: f, Column: m.columns[f]})
	}
	out, err := yaml.Marshal(ff)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mapping: %w", err)
	}
	return out, nil
}

// Unmarshal decodes a YAML mapping. The result is never confirmed: callers
// re-confirm it against the current columns.
func Unmarshal(data []byte) (*Mapping, error) {
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}
	if ff.Version > 1 {
		return nil, fmt.Errorf("unsupported mapping version %d", ff.Version)
	}

	fields := make([]string, 0, len(ff.Fields))
	table := make(map[string]string, len(ff.Fields))
	for _, e := range ff.Fields {
		if e.Field == "" {
			return nil, errors.New("mapping entry without field name")
		}
		fields = append(fields, e.Field)
		table[e.Field] = e.Column
	}
	return FromTable(fields, table), nil
}

// Save writes m to path.
func Save(path string, m *Mapping) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write mapping file %s: %w", path, err)
	}
	return nil
}

// Load reads a mapping from path.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}
	return Unmarshal(data)
}
