package starlark

import (
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/leapdoc/internal/archive"
	"go.starlark.net/starlark"
)

var dateLayouts = []string{"02/01/2006", "2006-01-02", "02-01-2006", "02.01.2006", "2006/01/02"}

var dateTokens = strings.NewReplacer("YYYY", "2006", "YY", "06", "MM", "01", "DD", "02")

// Predeclared returns the globals every script sees: the dataset columns
// plus string helpers for common cleanup.
func Predeclared(columns []string) starlark.StringDict {
	cols := make([]starlark.Value, len(columns))
	for i, c := range columns {
		cols[i] = starlark.String(c)
	}
	return starlark.StringDict{
		"columns":      starlark.Tuple(cols),
		"digits":       starlark.NewBuiltin("digits", digitsFn),
		"slug":         starlark.NewBuiltin("slug", slugFn),
		"format_cpf":   starlark.NewBuiltin("format_cpf", formatCPF),
		"format_date":  starlark.NewBuiltin("format_date", formatDate),
		"parse_number": starlark.NewBuiltin("parse_number", parseNumber),
	}
}

func unpackString(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (string, error) {
	var s string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
		return "", err
	}
	return s, nil
}

func onlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func digitsFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := unpackString(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.String(onlyDigits(s)), nil
}

func slugFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := unpackString(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.String(archive.Slug(s)), nil
}

// formatCPF renders 11 digits as 000.000.000-00 and returns other input unchanged.
func formatCPF(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := unpackString(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	d := onlyDigits(s)
	if len(d) != 11 {
		return starlark.String(s), nil
	}
	return starlark.String(d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]), nil
}

// formatDate reparses a date in any accepted layout and prints it with a
// DD/MM/YYYY style pattern. Unparseable input is returned unchanged.
func formatDate(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value string
	layout := "DD/MM/YYYY"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &value, "layout?", &layout); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(value)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, trimmed); err == nil {
			return starlark.String(t.Format(dateTokens.Replace(layout))), nil
		}
	}
	return starlark.String(value), nil
}

// parseNumber accepts plain and Brazilian-formatted numbers and returns
// None when the text is not a number.
func parseNumber(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := unpackString(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return starlark.Float(f), nil
	}
	br := strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	if f, err := strconv.ParseFloat(br, 64); err == nil {
		return starlark.Float(f), nil
	}
	return starlark.None, nil
}
