package container

import (
	"html"
	"strings"

	"github.com/leapstack-labs/leapdoc/internal/markup"
	"github.com/leapstack-labs/leapdoc/internal/placeholder"
)

// HTML is an HTML document template.
type HTML struct {
	name string
	data []byte
}

// NewHTML wraps HTML template bytes.
func NewHTML(name string, data []byte) *HTML {
	return &HTML{name: name, data: data}
}

// Name returns the template file name.
func (h *HTML) Name() string { return h.name }

// Kind returns KindHTML.
func (h *HTML) Kind() Kind { return KindHTML }

// Ext returns ".html".
func (h *HTML) Ext() string { return ".html" }

// Bytes returns the document bytes.
func (h *HTML) Bytes() []byte { return h.data }

// RawMarkup returns the document source.
func (h *HTML) RawMarkup() (string, error) {
	return string(h.data), nil
}

// Fill replaces every field token with its escaped value.
func (h *HTML) Fill(values map[string]string) (Container, error) {
	out, err := h.substitute(values, false)
	if err != nil {
		return nil, err
	}
	return &HTML{name: h.name, data: []byte(out)}, nil
}

// FillSlots replaces tokens in text content with marked values. Tokens inside
// tag attributes are substituted without a marker.
func (h *HTML) FillSlots(values map[string]string) (string, error) {
	out, err := h.substitute(values, true)
	if err != nil {
		return "", err
	}
	return markup.PageContent(out)
}

// ToMarkup returns the document as a fragment. Full pages keep their head
// styles.
func (h *HTML) ToMarkup() (string, error) {
	return markup.PageContent(string(h.data))
}

func (h *HTML) substitute(values map[string]string, mark bool) (string, error) {
	src := string(h.data)
	fields, err := placeholder.Scan(src, h.name)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(src))
	last := 0
	for _, f := range fields {
		b.WriteString(src[last:f.Start])
		value := values[f.Value]
		if mark && !insideTag(src, f.Start) {
			b.WriteString(markup.WrapText(f.Value, value))
		} else {
			b.WriteString(html.EscapeString(value))
		}
		last = f.End
	}
	b.WriteString(src[last:])
	return b.String(), nil
}

// insideTag reports whether offset falls between '<' and '>' of a tag.
func insideTag(src string, offset int) bool {
	open := strings.LastIndexByte(src[:offset], '<')
	if open < 0 {
		return false
	}
	return strings.LastIndexByte(src[:offset], '>') < open
}
