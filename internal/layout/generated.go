package layout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/internal/markup"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

const generatedSystem = "Você é um designer de documentos. Responda apenas com HTML."

// Generated asks the generation service for a freeform layout per row. The
// service authors the markers; their key is the column name.
type Generated struct {
	gen    genai.Generator
	logger *slog.Logger
}

// NewGenerated creates a generated-layout strategy.
func NewGenerated(gen genai.Generator, logger *slog.Logger) *Generated {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Generated{gen: gen, logger: logger}
}

// Kind returns core.LayoutGenerated.
func (g *Generated) Kind() core.LayoutKind {
	return core.LayoutGenerated
}

// Render generates markup for row. The response is unfenced, sanitised and
// stripped of markers naming columns the row does not have.
func (g *Generated) Render(ctx context.Context, row dataset.Row, rc RenderContext) (core.Fragment, error) {
	body, err := g.generate(ctx, row, rc)
	if err != nil {
		err = fmt.Errorf("%w: row %d: %w", core.ErrGenerationFailed, row.Index+1, err)
		return ErrorFragment(core.LayoutGenerated, row, genai.UserMessage(err), err), err
	}

	frag, err := okFragment(core.LayoutGenerated, row, body)
	if err != nil {
		err = fmt.Errorf("%w: %w", core.ErrGenerationFailed, err)
		return ErrorFragment(core.LayoutGenerated, row, err.Error(), err), err
	}
	if len(frag.Fields) == 0 {
		g.logger.Warn("generated layout has no field markers", "row", row.Index)
	}
	return frag, nil
}

func (g *Generated) generate(ctx context.Context, row dataset.Row, rc RenderContext) (string, error) {
	if g.gen == nil {
		return "", core.ErrNoCredential
	}

	instructions := strings.TrimSpace(rc.Instructions)
	if instructions == "" {
		instructions = DefaultInstructions
	}
	prompt, err := genai.RenderPrompt(genai.PromptLayout, map[string]any{
		"instructions": instructions,
		"pairs":        row.Pairs(),
	})
	if err != nil {
		return "", err
	}

	resp, err := g.gen.Generate(ctx, genai.Request{System: generatedSystem, Prompt: prompt})
	if err != nil {
		return "", err
	}

	body := markup.Sanitize(markup.BodyContent(markup.StripCodeFence(resp.Text)))
	if body == "" {
		return "", fmt.Errorf("%w: empty layout", core.ErrServiceTransient)
	}

	doc, err := markup.Parse(body)
	if err != nil {
		return "", err
	}
	doc.Normalize()
	if dropped := doc.Unwrap(row.HasColumn); len(dropped) > 0 {
		g.logger.Debug("dropped markers for unknown columns", "row", row.Index, "fields", dropped)
	}
	return doc.HTML()
}

// Document renders row and wraps it in a standalone page.
func (g *Generated) Document(ctx context.Context, row dataset.Row, rc RenderContext) (Document, error) {
	frag, err := g.Render(ctx, row, rc)
	if err != nil {
		return Document{}, err
	}
	return PageDocument(frag), nil
}
