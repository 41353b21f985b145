// Package validation checks dataset rows and reports issues per logical
// field. Issues feed the overlay, which highlights them in the preview and
// the data grid.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds concurrent row validations.
const DefaultConcurrency = 4

// Validator validates one row.
type Validator interface {
	Validate(ctx context.Context, row dataset.Row) ([]core.ValidationIssue, error)
}

// ServiceValidator asks the generation service to check a row.
type ServiceValidator struct {
	Generator genai.Generator
	// Rules are free-text extra rules added to the prompt.
	Rules string
}

type serviceIssue struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

var issueSchema = genai.ArrayOf(genai.Object(map[string]*genai.Schema{
	"field": genai.String("nome exato da coluna"),
	"issue": genai.String("descrição curta do problema"),
}, "field", "issue"))

// Validate sends the row to the service. Entries without a field or
// message are dropped.
func (v ServiceValidator) Validate(ctx context.Context, row dataset.Row) ([]core.ValidationIssue, error) {
	if v.Generator == nil {
		return nil, core.ErrNoCredential
	}
	prompt, err := genai.RenderPrompt(genai.PromptValidate, map[string]any{
		"rules": strings.TrimSpace(v.Rules),
		"pairs": row.Pairs(),
	})
	if err != nil {
		return nil, err
	}

	var raw []serviceIssue
	if err := genai.GenerateJSON(ctx, v.Generator, genai.Request{Prompt: prompt, Schema: issueSchema}, &raw); err != nil {
		return nil, err
	}

	issues := make([]core.ValidationIssue, 0, len(raw))
	for _, r := range raw {
		field, msg := strings.TrimSpace(r.Field), strings.TrimSpace(r.Issue)
		if field == "" || msg == "" {
			continue
		}
		issues = append(issues, core.ValidationIssue{Row: row.Index, Field: field, Message: msg})
	}
	return issues, nil
}

// Chain runs several validators and concatenates their issues.
type Chain []Validator

// Validate runs every validator in order. The first error aborts.
func (c Chain) Validate(ctx context.Context, row dataset.Row) ([]core.ValidationIssue, error) {
	var out []core.ValidationIssue
	for _, v := range c {
		issues, err := v.Validate(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, issues...)
	}
	return out, nil
}

// Options configures ValidateAll.
type Options struct {
	Concurrency int
	Logger      *slog.Logger
}

// ValidateAll validates rows concurrently and returns the issues ordered by
// row. A failure on one row does not affect the others; row failures are
// joined into the returned error. Credential failures abort the whole pass.
func ValidateAll(ctx context.Context, v Validator, rows []dataset.Row, opts Options) ([]core.ValidationIssue, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([][]core.ValidationIssue, len(rows))
	rowErrs := make([]error, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, row := range rows {
		g.Go(func() error {
			issues, err := v.Validate(gctx, row)
			if err != nil {
				if errors.Is(err, core.ErrServiceAuthOrQuota) || errors.Is(err, core.ErrNoCredential) {
					return err
				}
				logger.Debug("row validation failed", "row", row.Index, "error", err)
				rowErrs[i] = core.NewRowError(row.Index, "validate", err)
				return nil
			}
			for j := range issues {
				issues[j].Row = row.Index
			}
			results[i] = issues
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validation aborted: %w", err)
	}

	var issues []core.ValidationIssue
	for _, r := range results {
		issues = append(issues, r...)
	}
	sort.SliceStable(issues, func(a, b int) bool { return issues[a].Row < issues[b].Row })
	return issues, errors.Join(rowErrs...)
}
