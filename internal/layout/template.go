package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"

	"github.com/leapstack-labs/leapdoc/internal/container"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/mapping"
	"github.com/leapstack-labs/leapdoc/internal/markup"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Template fills a document container with row values.
type Template struct {
	container container.Container
	mapping   *mapping.Mapping
	logger    *slog.Logger
}

// NewTemplate creates a template strategy. The mapping must be confirmed.
func NewTemplate(c container.Container, m *mapping.Mapping, logger *slog.Logger) (*Template, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: no template loaded", core.ErrTemplateUnreadable)
	}
	if m == nil || !m.Confirmed() {
		return nil, fmt.Errorf("%w: mapping not confirmed", core.ErrMappingIncomplete)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Template{container: c, mapping: m, logger: logger}, nil
}

// Kind returns core.LayoutTemplate.
func (t *Template) Kind() core.LayoutKind {
	return core.LayoutTemplate
}

// Mapping returns the confirmed mapping.
func (t *Template) Mapping() *mapping.Mapping {
	return t.mapping
}

// Container returns the template container.
func (t *Template) Container() container.Container {
	return t.container
}

// Render fills the template for row. Containers that support slot filling
// mark values while substituting; others are filled, converted and then
// marked by claiming value occurrences in mapping order.
func (t *Template) Render(_ context.Context, row dataset.Row, _ RenderContext) (core.Fragment, error) {
	values := t.mapping.Values(row)

	body, err := t.fill(values)
	if err != nil {
		err = fmt.Errorf("fill template %s: %w", t.container.Name(), err)
		return ErrorFragment(core.LayoutTemplate, row, err.Error(), err), err
	}

	frag, err := okFragment(core.LayoutTemplate, row, body)
	if err != nil {
		return ErrorFragment(core.LayoutTemplate, row, err.Error(), err), err
	}
	return frag, nil
}

func (t *Template) fill(values map[string]string) (string, error) {
	if sf, ok := t.container.(container.SlotFiller); ok {
		return sf.FillSlots(values)
	}

	filled, err := t.container.Fill(values)
	if err != nil {
		return "", err
	}
	converted, err := filled.ToMarkup()
	if err != nil {
		return "", err
	}

	subs := make([]markup.Substitution, 0, len(values))
	for _, f := range t.mapping.Fields() {
		subs = append(subs, markup.Substitution{Field: f, Value: values[f]})
	}
	res, err := markup.Claim(converted, subs)
	if err != nil {
		return "", err
	}
	for _, u := range res.Unclaimed {
		if u.Value != "" {
			t.logger.Debug("substituted value not located in markup", "field", u.Field)
		}
	}
	return res.Markup, nil
}

// Document returns the filled container.
func (t *Template) Document(_ context.Context, row dataset.Row, _ RenderContext) (Document, error) {
	filled, err := t.container.Fill(t.mapping.Values(row))
	if err != nil {
		return Document{}, core.NewRowError(row.Index, "fill template", err)
	}
	if filled == nil {
		return Document{}, core.NewRowError(row.Index, "fill template", errors.New("container returned no document"))
	}
	ext := filled.Ext()
	return Document{Ext: ext, ContentType: contentType(ext), Content: filled.Bytes()}, nil
}

func contentType(ext string) string {
	if ext == ".docx" {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
