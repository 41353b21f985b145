// Package starlark runs user transform scripts over dataset rows.
//
// A script is a Starlark module that defines either transform(row), called
// once per row with a dict of column -> value, or transform_all(rows),
// called once with the list of every row dict.
package starlark

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/leapdoc/pkg/core"
	"go.starlark.net/starlark"
)

// RowDict builds the mutable dict handed to transform(row).
func RowDict(columns, values []string) *starlark.Dict {
	dict := starlark.NewDict(len(columns))
	for i, c := range columns {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		_ = dict.SetKey(starlark.String(c), starlark.String(v))
	}
	return dict
}

// RowList builds the list handed to transform_all(rows).
func RowList(columns []string, records [][]string) *starlark.List {
	items := make([]starlark.Value, len(records))
	for i, rec := range records {
		items[i] = RowDict(columns, rec)
	}
	return starlark.NewList(items)
}

// RowValues reads a returned dict back into a record. Keys that are not
// columns fail with core.ErrUnknownColumn; missing keys keep the value in old.
func RowValues(v starlark.Value, columns, old []string) ([]string, error) {
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("expected dict, got %s", v.Type())
	}

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	out := make([]string, len(columns))
	copy(out, old)

	for _, item := range dict.Items() {
		key, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
		}
		i, known := index[key]
		if !known {
			return nil, fmt.Errorf("%w: %q", core.ErrUnknownColumn, key)
		}
		s, err := Stringify(item[1])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", key, err)
		}
		out[i] = s
	}
	return out, nil
}

// Stringify converts a scalar Starlark value to its cell text.
// None becomes the empty string.
func Stringify(v starlark.Value) (string, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return "", nil
	case starlark.String:
		return string(val), nil
	case starlark.Bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case starlark.Int:
		return val.String(), nil
	case starlark.Float:
		return strconv.FormatFloat(float64(val), 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported cell value of type %s", v.Type())
	}
}

// ToGo converts a Starlark value to plain Go values: string, int64, float64,
// bool, []any, map[string]any or nil.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		if i64, ok := val.Int64(); ok {
			return i64, nil
		}
		return val.String(), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Indexable:
		out := make([]any, val.Len())
		for i := range out {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = gv
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			out[key] = gv
		}
		return out, nil
	default:
		return val.String(), nil
	}
}
