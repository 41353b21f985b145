// Package markup defines the field marker format embedded in rendered
// fragments and the DOM operations performed on it.
//
// A marker is a span carrying the logical field name:
//
//	<span class="field-marker" data-field="Email">ana@x.com</span>
//
// Markers are the only link between a rendered value and its source field.
// The validation overlay adds state to them (class, message, hook id) and
// clears that state again on the next run.
package markup

import (
	"html"
	"strconv"
	"strings"
)

// Marker attributes and classes.
const (
	AttrField    = "data-field"
	AttrIssue    = "data-issue"
	AttrHook     = "data-hook"
	ClassMarker  = "field-marker"
	ClassInvalid = "invalid-field"
)

// Selector matches every field marker.
const Selector = "[" + AttrField + "]"

// Wrap wraps already-escaped inner markup in a marker for field.
func Wrap(field, inner string) string {
	var b strings.Builder
	b.Grow(len(field) + len(inner) + 48)
	b.WriteString(`<span class="`)
	b.WriteString(ClassMarker)
	b.WriteString(`" `)
	b.WriteString(AttrField)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(field))
	b.WriteString(`">`)
	b.WriteString(inner)
	b.WriteString(`</span>`)
	return b.String()
}

// WrapText escapes a plain value and wraps it in a marker for field.
func WrapText(field, value string) string {
	return Wrap(field, html.EscapeString(value))
}

// ErrorNotice renders the visible notice used in place of a failed fragment.
func ErrorNotice(row int, message string) string {
	return `<div class="render-error" role="alert"><strong>Falha ao gerar o documento ` +
		strconv.Itoa(row+1) + `.</strong> ` + html.EscapeString(message) + `</div>`
}

// SkippedNotice renders the notice for rows not attempted after a failure.
func SkippedNotice(row int) string {
	return `<div class="render-skipped">Documento ` + strconv.Itoa(row+1) + ` não gerado: processamento interrompido.</div>`
}
