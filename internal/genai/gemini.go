package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapdoc/pkg/core"
	gemini "google.golang.org/genai"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	// APIKey authenticates requests. Required.
	APIKey string
	// Model is the model id (default gemini-2.5-flash).
	Model string
	// Timeout bounds a single request (default 60s).
	Timeout time.Duration
	// Endpoint overrides the service URL (tests).
	Endpoint string
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Gemini calls the Gemini API.
type Gemini struct {
	models  *gemini.Models
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.ErrNoCredential
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cc := &gemini.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: gemini.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions.BaseURL = cfg.Endpoint
	}
	client, err := gemini.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Gemini{
		models:  client.Models,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Model returns the configured model id.
func (g *Gemini) Model() string {
	return g.model
}

// Generate sends one prompt and returns the text of the first candidate.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*gemini.Content{gemini.NewContentFromText(req.Prompt, gemini.RoleUser)}
	cfg := &gemini.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = gemini.NewContentFromText(req.System, gemini.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toAPISchema(req.Schema)
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		classified := Classify(err)
		g.logger.Debug("generation failed", "model", g.model, "error", classified)
		return nil, classified
	}
	g.logger.Debug("generation completed", "model", g.model, "duration_ms", time.Since(start).Milliseconds())

	text, err := candidateText(resp)
	if err != nil {
		return nil, &ServiceError{Message: err.Error(), Kind: core.ErrServiceTransient}
	}
	return &Response{Text: text}, nil
}

func candidateText(resp *gemini.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("response has no candidates")
	}

	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("candidate has no content (finish reason %s)", cand.FinishReason)
	}

	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("candidate has no text (finish reason %s)", cand.FinishReason)
	}
	return b.String(), nil
}

func toAPISchema(s *Schema) *gemini.Schema {
	if s == nil {
		return nil
	}
	out := &gemini.Schema{
		Type:        gemini.Type(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Items:       toAPISchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*gemini.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toAPISchema(prop)
		}
	}
	return out
}
