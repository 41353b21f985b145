// Package analysis produces a short service-written overview of a dataset:
// a Markdown summary rendered to safe HTML and a small bar chart.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	// SampleRows is how many rows are sent to the service.
	SampleRows = 20
	// MaxBars caps the chart.
	MaxBars = 5
)

// Bar is one chart entry. Percent is relative to the largest value.
type Bar struct {
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
}

// Report is the result of an analysis.
type Report struct {
	Summary     string `json:"summary"`
	SummaryHTML string `json:"summary_html"`
	Chart       []Bar  `json:"chart"`
	Sampled     int    `json:"sampled"`
	Total       int    `json:"total"`
}

type serviceReport struct {
	Summary   string `json:"summary"`
	ChartData []struct {
		Label string  `json:"label"`
		Value float64 `json:"value"`
	} `json:"chartData"`
}

var reportSchema = genai.Object(map[string]*genai.Schema{
	"summary": genai.String("resumo em markdown"),
	"chartData": genai.ArrayOf(genai.Object(map[string]*genai.Schema{
		"label": genai.String("rótulo"),
		"value": genai.Number("valor"),
	}, "label", "value")),
}, "summary", "chartData")

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

// Analyze sends the first SampleRows rows of ds to the service.
func Analyze(ctx context.Context, gen genai.Generator, ds *dataset.Dataset) (*Report, error) {
	if gen == nil {
		return nil, core.ErrNoCredential
	}
	rows := ds.Head(SampleRows)
	values := make([][]string, len(rows))
	for i, r := range rows {
		values[i] = r.Values()
	}

	prompt, err := genai.RenderPrompt(genai.PromptAnalyze, map[string]any{
		"sample":  len(rows),
		"total":   ds.Len(),
		"columns": ds.Columns(),
		"rows":    values,
	})
	if err != nil {
		return nil, err
	}

	var raw serviceReport
	if err := genai.GenerateJSON(ctx, gen, genai.Request{Prompt: prompt, Schema: reportSchema}, &raw); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	html, err := RenderMarkdown(raw.Summary)
	if err != nil {
		return nil, err
	}
	bars := make([]Bar, 0, len(raw.ChartData))
	for _, d := range raw.ChartData {
		bars = append(bars, Bar{Label: strings.TrimSpace(d.Label), Value: d.Value})
	}
	return &Report{
		Summary:     strings.TrimSpace(raw.Summary),
		SummaryHTML: html,
		Chart:       Scale(bars),
		Sampled:     len(rows),
		Total:       ds.Len(),
	}, nil
}

// RenderMarkdown converts a Markdown summary into sanitised HTML.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return strings.TrimSpace(policy.Sanitize(buf.String())), nil
}

// Scale keeps at most MaxBars entries and sets Percent to value/max*100.
// Negative and non-finite values are clamped to zero.
func Scale(bars []Bar) []Bar {
	if len(bars) > MaxBars {
		bars = bars[:MaxBars]
	}
	out := make([]Bar, len(bars))
	maxValue := 0.0
	for i, b := range bars {
		if b.Value < 0 || math.IsNaN(b.Value) || math.IsInf(b.Value, 0) {
			b.Value = 0
		}
		out[i] = b
		maxValue = math.Max(maxValue, b.Value)
	}
	for i := range out {
		if maxValue > 0 {
			out[i].Percent = out[i].Value / maxValue * 100
		}
	}
	return out
}
