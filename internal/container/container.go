// Package container opens document templates and fills their placeholders.
//
// Two container kinds are supported: HTML documents and Word (.docx)
// packages. Both can fill and mark values in a single pass (SlotFiller), so
// rendered previews carry exact field markers without searching text.
package container

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Kind identifies a container format.
type Kind string

// Container kinds.
const (
	KindHTML Kind = "html"
	KindDOCX Kind = "docx"
)

// Container is an opened document template.
type Container interface {
	// Name is the file name the container was opened from.
	Name() string
	Kind() Kind
	// Ext is the file extension for documents produced from this container.
	Ext() string
	// RawMarkup returns the markup placeholders are extracted from. Tokens may
	// be split by nested tags.
	RawMarkup() (string, error)
	// Fill returns a new container with every field token replaced by its
	// value. Tokens without a value are replaced by an empty string.
	Fill(values map[string]string) (Container, error)
	// ToMarkup converts the container body to HTML for previewing.
	ToMarkup() (string, error)
	// Bytes returns the container's serialized form.
	Bytes() []byte
}

// SlotFiller is implemented by containers that can substitute values and
// mark them with field markers in one pass over their structure.
type SlotFiller interface {
	// FillSlots substitutes values and returns preview markup in which each
	// substituted value is wrapped in a marker named after its token.
	FillSlots(values map[string]string) (string, error)
}

// Open opens template data, choosing the format from the file extension.
func Open(name string, data []byte) (Container, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return NewHTML(name, data), nil
	case ".docx":
		return OpenDOCX(name, data)
	default:
		return nil, fmt.Errorf("%w: unsupported template format %q (want .docx or .html)", core.ErrTemplateUnreadable, name)
	}
}
