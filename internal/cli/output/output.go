// Package output renders command results for terminals, pipes and scripts.
//
// Auto mode picks text on a TTY and markdown otherwise, so piped output
// stays readable by other tools.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// OutputMode selects the output format.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// DefaultWidth is the wrap width when the terminal size is unknown.
const DefaultWidth = 100

// Mode converts a config value to an OutputMode. Unknown values are auto.
func Mode(s string) OutputMode {
	switch OutputMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText
	case ModeMarkdown, "md":
		return ModeMarkdown
	case ModeJSON:
		return ModeJSON
	default:
		return ModeAuto
	}
}

// Renderer writes formatted output.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   OutputMode
	width  int
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	isTTY := false
	width := DefaultWidth
	if f, ok := out.(*os.File); ok {
		fd := int(f.Fd()) //nolint:gosec // file descriptors fit in int
		isTTY = term.IsTerminal(fd)
		if isTTY {
			if w, _, err := term.GetSize(fd); err == nil && w > 0 {
				width = w
			}
		}
	}
	r := NewRendererWithTTY(out, errOut, isTTY, mode)
	r.width = width
	return r
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		isTTY:  isTTY,
		mode:   mode,
		width:  DefaultWidth,
		styles: NewStyles(out, isTTY),
	}
}

// EffectiveMode resolves auto to text or markdown.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Writer returns the output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the diagnostics writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Width returns the wrap width.
func (r *Renderer) Width() int { return r.width }

// SetWidth overrides the wrap width.
func (r *Renderer) SetWidth(w int) {
	if w > 0 {
		r.width = w
	}
}

// Styles returns the lipgloss styles for this renderer.
func (r *Renderer) Styles() *Styles { return r.styles }

// Println writes a line.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Header writes a section header.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatHeader(level, text))
		r.Println("")
		return
	}
	r.Println(r.styles.Header.Render(text))
}

// Success writes a success message.
func (r *Renderer) Success(msg string) {
	r.statusMessage("✓", r.styles.Success.Render("✓"), msg)
}

// Warning writes a warning to the diagnostics writer.
func (r *Renderer) Warning(msg string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("!")+" "+msg)
		return
	}
	_, _ = fmt.Fprintln(r.errOut, "> **Warning:** "+msg)
}

// Error writes an error to the diagnostics writer.
func (r *Renderer) Error(msg string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("✗")+" "+msg)
		return
	}
	_, _ = fmt.Fprintln(r.errOut, "> **Error:** "+msg)
}

func (r *Renderer) statusMessage(plain, styled, msg string) {
	if r.EffectiveMode() == ModeText {
		r.Println(styled + " " + msg)
		return
	}
	r.Println(plain + " " + msg)
}

// StatusLine writes "name  status  detail" with a status symbol.
func (r *Renderer) StatusLine(name, status, detail string) {
	symbol, style := "•", r.styles.Muted
	switch status {
	case "success", "ok", "completed":
		symbol, style = "✓", r.styles.Success
	case "failed", "error":
		symbol, style = "✗", r.styles.Error
	case "skipped", "warning", "running":
		symbol, style = "-", r.styles.Warning
	}

	if r.EffectiveMode() == ModeMarkdown {
		line := fmt.Sprintf("- %s %s", symbol, name)
		if detail != "" {
			line += ": " + detail
		}
		r.Println(line)
		return
	}
	line := style.Render(symbol) + " " + name
	if detail != "" {
		line += " " + r.styles.Muted.Render(detail)
	}
	r.Println(line)
}
