// Package placeholder discovers the field tokens of a document template.
//
// Tokens are delimited by single braces, e.g. {Nome}. Word processors often
// split a token across formatting runs, so markup tags found between the
// braces are stripped before the name is read. Loop and conditional tags
// ({#items}, {/items}, {^empty}) are not fields and are excluded.
package placeholder

import (
	"fmt"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Source is anything that can expose its raw template markup.
type Source interface {
	Name() string
	RawMarkup() (string, error)
}

// Extract returns the distinct field names in raw, in first-occurrence order.
// A template without placeholders yields an empty, non-nil slice.
func Extract(raw string) ([]string, error) {
	fields, err := Scan(raw, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Value]; dup {
			continue
		}
		seen[f.Value] = struct{}{}
		names = append(names, f.Value)
	}
	return names, nil
}

// Scan returns every field token occurrence in raw, duplicates included.
func Scan(raw, file string) ([]Token, error) {
	tokens, err := NewLexer(raw, file).Tokenize()
	if err != nil {
		return nil, err
	}

	var fields []Token
	for _, tok := range tokens {
		if tok.Type == TokenField {
			fields = append(fields, tok)
		}
	}
	return fields, nil
}

// ExtractContainer reads the markup of a template container and extracts its
// field names. Failures to read the container or tokenize its markup are
// reported as core.ErrTemplateUnreadable.
func ExtractContainer(src Source) ([]string, error) {
	raw, err := src.RawMarkup()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrTemplateUnreadable, src.Name(), err)
	}

	names, err := Extract(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrTemplateUnreadable, src.Name(), err)
	}
	return names, nil
}
