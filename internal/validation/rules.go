package validation

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// Rule is a local check. Expr must evaluate to true for valid rows. The
// environment holds the field's value as `value`, the whole row as `row`
// (column -> string) and helper functions: empty, isEmail, isCPF, isCNPJ,
// isDate, isNumber, matches.
type Rule struct {
	Field   string `koanf:"field" yaml:"field"`
	Expr    string `koanf:"expr" yaml:"expr"`
	Message string `koanf:"message" yaml:"message"`
}

type compiledRule struct {
	Rule
	program *vm.Program
}

// RuleValidator evaluates rules offline.
type RuleValidator struct {
	rules []compiledRule
}

// NewRuleValidator compiles rules against columns.
func NewRuleValidator(rules []Rule, columns []string) (*RuleValidator, error) {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	sample := env(dataset.NewRow(0, columns, make([]string, len(columns))), "")

	rv := &RuleValidator{}
	for i, r := range rules {
		if !known[r.Field] {
			return nil, fmt.Errorf("rule %d: %w: %q", i+1, core.ErrUnknownColumn, r.Field)
		}
		program, err := expr.Compile(r.Expr, expr.Env(sample), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, r.Field, err)
		}
		if strings.TrimSpace(r.Message) == "" {
			r.Message = "valor inválido"
		}
		rv.rules = append(rv.rules, compiledRule{Rule: r, program: program})
	}
	return rv, nil
}

// Len returns the number of rules.
func (rv *RuleValidator) Len() int {
	return len(rv.rules)
}

// Validate evaluates every rule against row.
func (rv *RuleValidator) Validate(_ context.Context, row dataset.Row) ([]core.ValidationIssue, error) {
	var issues []core.ValidationIssue
	for _, r := range rv.rules {
		out, err := expr.Run(r.program, env(row, row.Get(r.Field)))
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Field, err)
		}
		if ok, _ := out.(bool); !ok {
			issues = append(issues, core.ValidationIssue{Row: row.Index, Field: r.Field, Message: r.Message})
		}
	}
	return issues, nil
}

func env(row dataset.Row, value string) map[string]any {
	return map[string]any{
		"value":    value,
		"row":      row.Map(),
		"empty":    func(s string) bool { return strings.TrimSpace(s) == "" },
		"isEmail":  isEmail,
		"isCPF":    isCPF,
		"isCNPJ":   isCNPJ,
		"isDate":   isDate,
		"isNumber": isNumber,
		"matches":  matches,
	}
}

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	return err == nil && addr.Name == "" && strings.Contains(addr.Address, ".")
}

var dateLayouts = []string{"02/01/2006", "2006-01-02", "02-01-2006", "02.01.2006"}

func isDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if _, err := time.Parse(l, s); err == nil {
			return true
		}
	}
	return false
}

// isNumber accepts plain and Brazilian-formatted numbers (1.234,56).
func isNumber(s string) bool {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if s == "" {
		return false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	br := strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	_, err := strconv.ParseFloat(br, 64)
	return err == nil
}

func matches(s, pattern string) bool {
	re, err := regexp.Compile(pattern)
	return err == nil && re.MatchString(s)
}

func digits(s string) []int {
	var out []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, int(r-'0'))
		}
	}
	return out
}

func allSame(d []int) bool {
	for _, x := range d[1:] {
		if x != d[0] {
			return false
		}
	}
	return true
}

func checkDigit(d []int, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += d[i] * w
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func isCPF(s string) bool {
	d := digits(s)
	if len(d) != 11 || allSame(d) {
		return false
	}
	return checkDigit(d, []int{10, 9, 8, 7, 6, 5, 4, 3, 2}) == d[9] &&
		checkDigit(d, []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}) == d[10]
}

func isCNPJ(s string) bool {
	d := digits(s)
	if len(d) != 14 || allSame(d) {
		return false
	}
	return checkDigit(d, []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) == d[12] &&
		checkDigit(d, []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) == d[13]
}
