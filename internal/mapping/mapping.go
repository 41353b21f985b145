// Package mapping resolves logical field names (template placeholders or
// generated-layout keys) to dataset columns.
//
// A Mapping starts as a suggestion, is edited by the user and becomes
// authoritative once confirmed. Confirmation builds the inverted index used
// by the validation overlay to translate a column back into every field that
// renders it.
package mapping

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
)

// Mapping is an ordered field -> column table. An empty column means the
// field is unmapped.
type Mapping struct {
	fields    []string
	columns   map[string]string
	confirmed bool
	index     map[string][]string
}

// New creates an all-unmapped mapping for fields. Duplicate fields are
// dropped, first occurrence wins.
func New(fields []string) *Mapping {
	m := &Mapping{columns: make(map[string]string, len(fields))}
	for _, f := range fields {
		if _, dup := m.columns[f]; dup {
			continue
		}
		m.fields = append(m.fields, f)
		m.columns[f] = ""
	}
	return m
}

// FromTable creates an unconfirmed mapping with the given assignments.
// Assignments for fields not in fields are ignored.
func FromTable(fields []string, table map[string]string) *Mapping {
	m := New(fields)
	for f, col := range table {
		if _, ok := m.columns[f]; ok {
			m.columns[f] = col
		}
	}
	return m
}

// Fields returns the logical fields in order.
func (m *Mapping) Fields() []string {
	return slices.Clone(m.fields)
}

// Len returns the number of fields.
func (m *Mapping) Len() int {
	return len(m.fields)
}

// Has reports whether field is part of the mapping.
func (m *Mapping) Has(field string) bool {
	_, ok := m.columns[field]
	return ok
}

// Column returns the column mapped to field and whether it is mapped.
func (m *Mapping) Column(field string) (string, bool) {
	col := m.columns[field]
	return col, col != ""
}

// Set maps field to column. An empty column unmaps the field. Editing a
// confirmed mapping drops its confirmation.
func (m *Mapping) Set(field, column string) error {
	if _, ok := m.columns[field]; !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	m.columns[field] = column
	m.confirmed = false
	m.index = nil
	return nil
}

// Table returns a copy of the field -> column table.
func (m *Mapping) Table() map[string]string {
	out := make(map[string]string, len(m.columns))
	for f, c := range m.columns {
		out[f] = c
	}
	return out
}

// Unmapped returns the fields with no column, in order.
func (m *Mapping) Unmapped() []string {
	var out []string
	for _, f := range m.fields {
		if m.columns[f] == "" {
			out = append(out, f)
		}
	}
	return out
}

// Confirmed reports whether the mapping has been confirmed.
func (m *Mapping) Confirmed() bool {
	return m.confirmed
}

// FieldsForColumn returns every field mapped to column, in field order.
// It is only meaningful on a confirmed mapping and returns nil otherwise.
func (m *Mapping) FieldsForColumn(column string) []string {
	return m.index[column]
}

// Values resolves every field against row. Unmapped fields and columns
// missing from the row resolve to "".
func (m *Mapping) Values(row dataset.Row) map[string]string {
	out := make(map[string]string, len(m.fields))
	for _, f := range m.fields {
		col := m.columns[f]
		if col == "" {
			out[f] = ""
			continue
		}
		out[f] = row.Get(col)
	}
	return out
}

// Clone returns an independent copy, keeping confirmation state.
func (m *Mapping) Clone() *Mapping {
	c := &Mapping{
		fields:    slices.Clone(m.fields),
		columns:   m.Table(),
		confirmed: m.confirmed,
	}
	if m.index != nil {
		c.buildIndex()
	}
	return c
}

func (m *Mapping) buildIndex() {
	m.index = make(map[string][]string)
	for _, f := range m.fields {
		if col := m.columns[f]; col != "" {
			m.index[col] = append(m.index[col], f)
		}
	}
}
