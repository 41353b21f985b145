package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Policy controls how incomplete mappings are treated on confirmation.
type Policy string

// Confirmation policies.
const (
	// PolicyStrict requires every field to be mapped.
	PolicyStrict Policy = "strict"
	// PolicyPermissive allows unmapped fields; they render as "".
	PolicyPermissive Policy = "permissive"
)

// ParsePolicy converts a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyStrict, "":
		return PolicyStrict, nil
	case PolicyPermissive:
		return PolicyPermissive, nil
	default:
		return "", fmt.Errorf("invalid mapping policy %q (must be strict or permissive)", s)
	}
}

// Resolver produces suggested mappings and confirms edited ones.
type Resolver struct {
	suggester Suggester
	logger    *slog.Logger
}

// NewResolver creates a resolver. A nil suggester suggests nothing.
func NewResolver(s Suggester, logger *slog.Logger) *Resolver {
	if s == nil {
		s = NoSuggester{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{suggester: s, logger: logger}
}

// Suggest returns a best-effort mapping of fields onto columns. It never
// fails: any suggester error degrades to an all-unmapped mapping. Suggested
// pairs naming unknown fields or columns are discarded.
func (r *Resolver) Suggest(ctx context.Context, fields, columns []string) *Mapping {
	m := New(fields)
	if len(fields) == 0 || len(columns) == 0 {
		return m
	}

	suggested, err := r.suggester.Suggest(ctx, m.Fields(), columns)
	if err != nil {
		r.logger.Warn("mapping suggestion failed, starting unmapped", "error", err)
		return m
	}

	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}

	accepted := 0
	for field, col := range suggested {
		col = strings.TrimSpace(col)
		if !m.Has(field) || col == "" {
			continue
		}
		if _, ok := known[col]; !ok {
			r.logger.Debug("discarding suggestion for unknown column", "field", field, "column", col)
			continue
		}
		m.columns[field] = col
		accepted++
	}
	r.logger.Debug("mapping suggested", "fields", len(fields), "mapped", accepted)
	return m
}

// Confirm validates edited against columns and policy and returns a
// confirmed copy with its inverted index built. edited is not modified.
func (r *Resolver) Confirm(edited *Mapping, columns []string, policy Policy) (*Mapping, error) {
	if edited == nil {
		return nil, fmt.Errorf("%w: no mapping to confirm", core.ErrMappingIncomplete)
	}

	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}
	for _, f := range edited.fields {
		col := edited.columns[f]
		if col == "" {
			continue
		}
		if _, ok := known[col]; !ok {
			return nil, fmt.Errorf("%w: field %q maps to %q", core.ErrUnknownColumn, f, col)
		}
	}

	if policy != PolicyPermissive {
		if missing := edited.Unmapped(); len(missing) > 0 {
			return nil, fmt.Errorf("%w: unmapped fields: %s", core.ErrMappingIncomplete, strings.Join(missing, ", "))
		}
	}

	confirmed := edited.Clone()
	confirmed.confirmed = true
	confirmed.buildIndex()
	return confirmed, nil
}

// Identity builds a confirmed mapping where every column maps to itself.
// Generated layouts use it: the column name is the field name.
func Identity(columns []string) *Mapping {
	m := New(columns)
	for _, c := range m.fields {
		m.columns[c] = c
	}
	m.confirmed = true
	m.buildIndex()
	return m
}
