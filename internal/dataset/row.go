package dataset

// Row is an immutable snapshot of one record: ordered (column, value) pairs.
type Row struct {
	Index    int
	Revision uint64

	columns []string
	index   map[string]int
	values  []string
}

// NewRow builds a detached row, mainly for tests and transformations.
func NewRow(index int, columns, values []string) Row {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	vals := make([]string, len(columns))
	copy(vals, values)
	return Row{Index: index, columns: columns, index: idx, values: vals}
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	return r.columns
}

// Values returns the values in column order.
func (r Row) Values() []string {
	return r.values
}

// Get returns the value of column, or "" if the column does not exist.
func (r Row) Get(column string) string {
	v, _ := r.Lookup(column)
	return v
}

// Lookup returns the value of column and whether the column exists.
func (r Row) Lookup(column string) (string, bool) {
	i, ok := r.index[column]
	if !ok || i >= len(r.values) {
		return "", false
	}
	return r.values[i], true
}

// Map returns the row as a column -> value map.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

// Pairs returns the row as ordered column/value pairs.
func (r Row) Pairs() []Pair {
	out := make([]Pair, len(r.columns))
	for i, c := range r.columns {
		out[i] = Pair{Column: c, Value: r.values[i]}
	}
	return out
}

// Pair is one column/value entry of a row.
type Pair struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// HasColumn reports whether the row has column.
func (r Row) HasColumn(column string) bool {
	_, ok := r.index[column]
	return ok
}
