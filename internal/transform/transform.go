// Package transform rewrites every record of a dataset in one pass, either
// through a Starlark script or through free-text rules sent to the
// generation service. Both guard the record count.
package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/internal/starlark"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// ErrNoRules is returned when a service transform has no rules.
var ErrNoRules = errors.New("transform rules are empty")

// Transformer rewrites records over a fixed column set.
type Transformer interface {
	Transform(ctx context.Context, columns []string, records [][]string) ([][]string, error)
}

// Script runs a Starlark transform script.
type Script struct {
	Name   string
	Source []byte
	Logger *slog.Logger
}

// LoadScript reads a script file.
func LoadScript(path string, logger *slog.Logger) (*Script, error) {
	src, err := os.ReadFile(path) //nolint:gosec // user-provided script path
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return &Script{Name: filepath.Base(path), Source: src, Logger: logger}, nil
}

// Transform compiles the script against columns and applies it.
func (s *Script) Transform(ctx context.Context, columns []string, records [][]string) ([][]string, error) {
	name := s.Name
	if name == "" {
		name = "transform.star"
	}
	compiled, err := starlark.Compile(name, s.Source, columns, s.Logger)
	if err != nil {
		return nil, err
	}
	return compiled.Apply(ctx, records)
}

// Service sends the records and rules to the generation service.
type Service struct {
	Generator genai.Generator
	Rules     string
}

// Transform asks the service for the rewritten records. Keys outside
// columns are ignored; keys the service omits keep their old values.
func (s Service) Transform(ctx context.Context, columns []string, records [][]string) ([][]string, error) {
	if s.Generator == nil {
		return nil, core.ErrNoCredential
	}
	rules := strings.TrimSpace(s.Rules)
	if rules == "" {
		return nil, ErrNoRules
	}

	objects := make([]map[string]string, len(records))
	for i, rec := range records {
		obj := make(map[string]string, len(columns))
		for j, c := range columns {
			if j < len(rec) {
				obj[c] = rec[j]
			}
		}
		objects[i] = obj
	}
	payload, err := json.MarshalIndent(objects, "", "  ")
	if err != nil {
		return nil, err
	}

	prompt, err := genai.RenderPrompt(genai.PromptTransform, map[string]any{
		"rules":   rules,
		"records": string(payload),
		"count":   len(records),
		"columns": columns,
	})
	if err != nil {
		return nil, err
	}

	props := make(map[string]*genai.Schema, len(columns))
	for _, c := range columns {
		props[c] = genai.String("")
	}
	var raw []map[string]any
	if err := genai.GenerateJSON(ctx, s.Generator, genai.Request{
		Prompt: prompt,
		Schema: genai.ArrayOf(genai.Object(props, columns...)),
	}, &raw); err != nil {
		return nil, err
	}
	if len(raw) != len(records) {
		return nil, fmt.Errorf("%w: got %d rows, want %d", core.ErrRowCountMismatch, len(raw), len(records))
	}

	out := make([][]string, len(records))
	for i, obj := range raw {
		rec := make([]string, len(columns))
		copy(rec, records[i])
		for j, c := range columns {
			v, ok := obj[c]
			if !ok || v == nil {
				continue
			}
			rec[j] = cell(v)
		}
		out[i] = rec
	}
	return out, nil
}

func cell(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
