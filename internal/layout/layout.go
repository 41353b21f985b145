// Package layout turns one dataset row into a tagged markup fragment.
//
// Two strategies exist. Template fills a document container through a
// confirmed field mapping. Generated asks the generation service for a
// freeform layout in which the service itself places the field markers,
// keyed by column name.
//
// Render always returns a usable fragment. When it also returns an error the
// fragment carries a visible notice and Status core.FragmentError.
package layout

import (
	"context"
	"fmt"
	"html"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/markup"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// DefaultInstructions is used when a generated layout has no instructions.
const DefaultInstructions = "Crie um layout limpo e profissional."

// RenderContext carries per-call rendering options.
type RenderContext struct {
	// Instructions guide generated layouts.
	Instructions string
}

// Document is an exportable file produced for a row.
type Document struct {
	Ext         string
	ContentType string
	Content     []byte
}

// Strategy renders rows.
type Strategy interface {
	Kind() core.LayoutKind
	Render(ctx context.Context, row dataset.Row, rc RenderContext) (core.Fragment, error)
	Document(ctx context.Context, row dataset.Row, rc RenderContext) (Document, error)
}

// Page wraps a fragment in a standalone HTML page titled after the row.
func Page(row int, body string) []byte {
	return fmt.Appendf(nil,
		`<!DOCTYPE html><html><head><meta charset="UTF-8"><title>Documento %d</title></head><body>%s</body></html>`,
		row+1, body)
}

// PageDocument builds the HTML document for a rendered fragment.
func PageDocument(f core.Fragment) Document {
	return Document{Ext: ".html", ContentType: "text/html; charset=utf-8", Content: Page(f.Row, f.Markup)}
}

// okFragment builds a successful fragment, listing its marker keys.
func okFragment(kind core.LayoutKind, row dataset.Row, body string) (core.Fragment, error) {
	fields, err := markup.Fields(body)
	if err != nil {
		return core.Fragment{}, err
	}
	return core.Fragment{
		Row:      row.Index,
		Layout:   kind,
		Markup:   body,
		Fields:   fields,
		Status:   core.FragmentOK,
		Revision: row.Revision,
	}, nil
}

// ErrorFragment builds the fragment shown for a failed row.
func ErrorFragment(kind core.LayoutKind, row dataset.Row, notice string, err error) core.Fragment {
	return core.Fragment{
		Row:      row.Index,
		Layout:   kind,
		Markup:   markup.ErrorNotice(row.Index, notice),
		Status:   core.FragmentError,
		Revision: row.Revision,
		Err:      err,
	}
}

// SkippedFragment builds the fragment for a row not attempted.
func SkippedFragment(kind core.LayoutKind, row int) core.Fragment {
	return core.Fragment{
		Row:    row,
		Layout: kind,
		Markup: markup.SkippedNotice(row),
		Status: core.FragmentSkipped,
	}
}

// PlainText renders a row without any layout, one marked line per column.
// It is used for terminal previews before a layout is chosen.
func PlainText(row dataset.Row) string {
	var out []byte
	for _, p := range row.Pairs() {
		out = append(out, "<p><strong>"...)
		out = append(out, html.EscapeString(p.Column)...)
		out = append(out, ":</strong> "...)
		out = append(out, markup.WrapText(p.Column, p.Value)...)
		out = append(out, "</p>"...)
	}
	return string(out)
}
