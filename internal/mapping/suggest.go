package mapping

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/leapstack-labs/leapdoc/internal/genai"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Suggester proposes a field -> column table. Results are untrusted and are
// checked by the Resolver.
type Suggester interface {
	Suggest(ctx context.Context, fields, columns []string) (map[string]string, error)
}

// NoSuggester suggests nothing.
type NoSuggester struct{}

// Suggest returns an empty table.
func (NoSuggester) Suggest(context.Context, []string, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

// ServiceSuggester asks the generation service for a mapping.
type ServiceSuggester struct {
	Generator genai.Generator
}

// Suggest sends fields and columns to the service and decodes the returned
// JSON object. Non-string values are ignored.
func (s ServiceSuggester) Suggest(ctx context.Context, fields, columns []string) (map[string]string, error) {
	prompt, err := genai.RenderPrompt(genai.PromptMapping, map[string]any{
		"fields":  fields,
		"columns": columns,
	})
	if err != nil {
		return nil, err
	}

	props := make(map[string]*genai.Schema, len(fields))
	for _, f := range fields {
		props[f] = genai.String("coluna correspondente ou vazio")
	}

	var raw map[string]any
	err = genai.GenerateJSON(ctx, s.Generator, genai.Request{
		Prompt: prompt,
		Schema: genai.Object(props),
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("mapping suggestion: %w", err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if col, ok := v.(string); ok {
			out[k] = col
		}
	}
	return out, nil
}

// DefaultThreshold is the minimum similarity for a heuristic match.
const DefaultThreshold = 0.75

// HeuristicSuggester matches names offline by normalized edit distance.
// Accents, case and punctuation are ignored. Pairs are claimed greedily from
// the highest score down, so each column goes to its best-scoring field.
type HeuristicSuggester struct {
	Threshold float64
}

type scoredPair struct {
	field  string
	column string
	score  float64
	order  int
}

// Suggest returns the matched pairs above the threshold.
func (h HeuristicSuggester) Suggest(_ context.Context, fields, columns []string) (map[string]string, error) {
	threshold := h.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	normCols := make([]string, len(columns))
	for i, c := range columns {
		normCols[i] = normalizeName(c)
	}

	var pairs []scoredPair
	for fi, f := range fields {
		nf := normalizeName(f)
		for ci, c := range columns {
			score := similarity(nf, normCols[ci])
			if score >= threshold {
				pairs = append(pairs, scoredPair{field: f, column: c, score: score, order: fi*len(columns) + ci})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		return pairs[i].order < pairs[j].order
	})

	out := make(map[string]string)
	claimed := make(map[string]bool)
	for _, p := range pairs {
		if _, done := out[p.field]; done || claimed[p.column] {
			continue
		}
		out[p.field] = p.column
		claimed[p.column] = true
	}
	return out, nil
}

// normalizeName folds accents, lowercases and keeps only letters and digits.
func normalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// similarity is 1 - distance/maxLen over runes.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(max(len(ra), len(rb)))
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := range prev {
		prev[i] = i
	}
	for j := 1; j <= len(b); j++ {
		curr[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}
