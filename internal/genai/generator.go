// Package genai is the client side of the external generation service.
//
// Every AI-backed operation (layout generation, mapping suggestion,
// validation, analysis, bulk transformation) goes through the Generator
// interface. Responses are untrusted: structured results are decoded and
// shape-checked at this boundary before reaching the rest of the system.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Request is one call to the generation service.
type Request struct {
	// System holds standing instructions, sent separately from the prompt.
	System string
	Prompt string
	// Schema, when set, asks for a JSON response conforming to it.
	Schema *Schema
}

// Response is the text returned by the service.
type Response struct {
	Text string
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (*Response, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Schema is a JSON schema subset understood by the service.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Schema type names.
const (
	TypeObject = "OBJECT"
	TypeArray  = "ARRAY"
	TypeString = "STRING"
	TypeNumber = "NUMBER"
)

// Object builds an object schema requiring every listed property.
func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

// ArrayOf builds an array schema.
func ArrayOf(items *Schema) *Schema {
	return &Schema{Type: TypeArray, Items: items}
}

// String builds a string schema.
func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

// Number builds a number schema.
func Number(description string) *Schema {
	return &Schema{Type: TypeNumber, Description: description}
}

var jsonFence = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*(.*?)\\s*```\\s*$")

// DecodeJSON decodes a structured response into v. Code fences are removed
// first. Malformed payloads are reported as core.ErrServiceTransient.
func DecodeJSON(text string, v any) error {
	payload := strings.TrimSpace(text)
	if m := jsonFence.FindStringSubmatch(payload); m != nil {
		payload = m[1]
	}
	if payload == "" {
		return fmt.Errorf("%w: empty response", core.ErrServiceTransient)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("%w: malformed response: %w", core.ErrServiceTransient, err)
	}
	return nil
}

// GenerateJSON sends req and decodes the response into v.
func GenerateJSON(ctx context.Context, g Generator, req Request, v any) error {
	resp, err := g.Generate(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp.Text, v)
}

// UserMessage turns a service error into a message fit for end users.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case isRateLimited(err):
		return "Limite de requisições atingido. Aguarde um minuto e tente novamente."
	case errors.Is(err, core.ErrServiceAuthOrQuota):
		return "A chave de API foi recusada ou a cota acabou. Informe uma nova chave."
	case errors.Is(err, core.ErrNoCredential):
		return "Nenhuma chave de API configurada."
	case errors.Is(err, core.ErrServiceTransient):
		return "O serviço de geração não respondeu corretamente. Tente novamente."
	default:
		return err.Error()
	}
}
