// Package credential manages the API key for the generation service.
//
// A Holder keeps the current key. When the service rejects the key or the
// quota is exhausted the key is invalidated, and every AI-dependent operation
// fails fast with core.ErrNoCredential until a new key is supplied.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Source resolves an API key.
type Source interface {
	Key(ctx context.Context) (string, error)
}

// Static is a key supplied directly (flag, config, UI form).
type Static string

// Key returns the key.
func (s Static) Key(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", core.ErrNoCredential
	}
	return strings.TrimSpace(string(s)), nil
}

// Env reads the key from an environment variable.
type Env string

// Key returns the variable's value.
func (e Env) Key(context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(string(e)))
	if v == "" {
		return "", fmt.Errorf("%w: %s is not set", core.ErrNoCredential, string(e))
	}
	return v, nil
}

// Chain tries sources in order and returns the first key found.
type Chain []Source

// Key returns the first available key.
func (c Chain) Key(ctx context.Context) (string, error) {
	var errs []error
	for _, s := range c {
		if s == nil {
			continue
		}
		key, err := s.Key(ctx)
		if err == nil {
			return key, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", core.ErrNoCredential
	}
	return "", fmt.Errorf("%w: %w", core.ErrNoCredential, errors.Join(errs...))
}

// Factory builds a generator for a key.
type Factory func(ctx context.Context, key string) (genai.Generator, error)

// Holder owns the active credential and the generator built from it.
type Holder struct {
	mu        sync.Mutex
	source    Source
	factory   Factory
	key       string
	gen       genai.Generator
	invalid   bool
	lastError error
	logger    *slog.Logger
}

// NewHolder creates a holder that resolves keys from source lazily.
func NewHolder(source Source, factory Factory, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Holder{source: source, factory: factory, logger: logger}
}

// Set installs a new key, clearing any previous invalidation.
func (h *Holder) Set(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.source = Static(key)
	h.key = ""
	h.gen = nil
	h.invalid = false
	h.lastError = nil
	h.logger.Debug("credential replaced")
}

// Invalidate marks the current key unusable.
func (h *Holder) Invalidate(cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.invalid = true
	h.gen = nil
	h.lastError = cause
	h.logger.Warn("credential invalidated", "error", cause)
}

// Available reports whether AI-dependent operations can run.
func (h *Holder) Available(ctx context.Context) bool {
	_, err := h.generator(ctx)
	return err == nil
}

// LastError returns the failure that invalidated the key, if any.
func (h *Holder) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

func (h *Holder) generator(ctx context.Context) (genai.Generator, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.invalid {
		return nil, fmt.Errorf("%w: previous key was rejected", core.ErrNoCredential)
	}
	if h.gen != nil {
		return h.gen, nil
	}
	if h.source == nil {
		return nil, core.ErrNoCredential
	}

	key, err := h.source.Key(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := h.factory(ctx, key)
	if err != nil {
		return nil, err
	}
	h.key, h.gen = key, gen
	return gen, nil
}

// Generate implements genai.Generator. Auth and quota failures invalidate
// the credential.
func (h *Holder) Generate(ctx context.Context, req genai.Request) (*genai.Response, error) {
	gen, err := h.generator(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := gen.Generate(ctx, req)
	if errors.Is(err, core.ErrServiceAuthOrQuota) {
		h.Invalidate(err)
	}
	return resp, err
}

// GeminiFactory builds Gemini clients with fixed options.
func GeminiFactory(cfg genai.GeminiConfig) Factory {
	return func(ctx context.Context, key string) (genai.Generator, error) {
		c := cfg
		c.APIKey = key
		return genai.NewGemini(ctx, c)
	}
}
