package output

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/muesli/reflow/wordwrap"
)

// FormatHeader returns a markdown header.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue returns a "**key:** value" line.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("**%s:** %s", key, value)
}

// FormatCodeBlock returns a fenced code block.
func FormatCodeBlock(lang, code string) string {
	return "```" + lang + "\n" + strings.TrimRight(code, "\n") + "\n```"
}

// KeyValue writes a key/value line in the effective mode.
func (r *Renderer) KeyValue(key, value string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatKeyValue(key, value))
		return
	}
	r.Println(r.styles.Muted.Render(key+":") + " " + value)
}

// Table writes rows under headers: a box table on terminals, a markdown
// table otherwise.
func (r *Renderer) Table(headers []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	t.AppendHeader(header)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

// HTMLToText converts an HTML fragment to markdown wrapped at width.
func HTMLToText(fragment string, width int) (string, error) {
	md, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return "", fmt.Errorf("convert fragment: %w", err)
	}
	md = strings.TrimSpace(md)
	if width > 0 {
		md = wordwrap.String(md, width)
	}
	return md, nil
}

// Fragment writes an HTML fragment. Text mode converts it to wrapped
// markdown; JSON mode emits the raw markup.
func (r *Renderer) Fragment(title, fragment string) error {
	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(map[string]string{"title": title, "markup": fragment})
	case ModeMarkdown:
		md, err := HTMLToText(fragment, 0)
		if err != nil {
			return err
		}
		if title != "" {
			r.Println(FormatHeader(2, title))
			r.Println("")
		}
		r.Println(md)
		r.Println("")
		return nil
	default:
		text, err := HTMLToText(fragment, r.width)
		if err != nil {
			return err
		}
		if title != "" {
			r.Println(r.styles.Header.Render(title))
		}
		r.Println(text)
		r.Println("")
		return nil
	}
}
