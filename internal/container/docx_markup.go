package container

import (
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
)

// wordMLToHTML converts the body of a WordprocessingML document to simple
// HTML: paragraphs, headings, bold/italic/underline runs, line breaks and
// tables. Layout details (fonts, spacing, sections) are not carried over.
func wordMLToHTML(src string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(src))
	c := &wordConverter{}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to convert document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			c.start(t)
		case xml.EndElement:
			c.end(t)
		case xml.CharData:
			if c.inText {
				c.run.WriteString(html.EscapeString(string(t)))
			}
		}
	}
	return strings.TrimSpace(c.out.String()), nil
}

type wordConverter struct {
	out strings.Builder

	depth   int // paragraph nesting (text boxes)
	para    strings.Builder
	paraTag string

	run       strings.Builder
	bold      bool
	italic    bool
	underline bool
	inRunProp bool
	inText    bool
}

func (c *wordConverter) start(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		c.depth++
		if c.depth == 1 {
			c.para.Reset()
			c.paraTag = "p"
		}
	case "pStyle":
		c.paraTag = headingTag(attr(t, "val"))
	case "r":
		c.run.Reset()
		c.bold, c.italic, c.underline = false, false, false
	case "rPr":
		c.inRunProp = true
	case "b":
		if c.inRunProp {
			c.bold = enabled(t)
		}
	case "i":
		if c.inRunProp {
			c.italic = enabled(t)
		}
	case "u":
		if c.inRunProp {
			c.underline = attr(t, "val") != "none"
		}
	case "t":
		c.inText = true
	case "tab":
		if !c.inRunProp {
			c.run.WriteString(" ")
		}
	case "br", "cr":
		c.run.WriteString("<br>")
	case "tbl":
		c.out.WriteString("<table>")
	case "tr":
		c.out.WriteString("<tr>")
	case "tc":
		c.out.WriteString("<td>")
	}
}

func (c *wordConverter) end(t xml.EndElement) {
	switch t.Name.Local {
	case "p":
		c.depth--
		if c.depth == 0 {
			c.out.WriteString("<" + c.paraTag + ">")
			c.out.WriteString(c.para.String())
			c.out.WriteString("</" + c.paraTag + ">")
		}
	case "rPr":
		c.inRunProp = false
	case "r":
		text := c.run.String()
		if text != "" {
			if c.underline {
				text = "<u>" + text + "</u>"
			}
			if c.italic {
				text = "<em>" + text + "</em>"
			}
			if c.bold {
				text = "<strong>" + text + "</strong>"
			}
		}
		c.para.WriteString(text)
		c.run.Reset()
	case "t":
		c.inText = false
	case "tbl":
		c.out.WriteString("</table>")
	case "tr":
		c.out.WriteString("</tr>")
	case "tc":
		c.out.WriteString("</td>")
	}
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// enabled reads an OOXML toggle property such as <w:b/> or <w:b w:val="0"/>.
func enabled(t xml.StartElement) bool {
	switch attr(t, "val") {
	case "0", "false", "off":
		return false
	default:
		return true
	}
}

// headingTag maps paragraph style ids such as Heading1 or Titulo2 to h1-h6.
func headingTag(style string) string {
	s := strings.ToLower(style)
	switch {
	case s == "title" || s == "titulo":
		return "h1"
	case strings.HasPrefix(s, "heading"), strings.HasPrefix(s, "ttulo"), strings.HasPrefix(s, "titulo"):
		level := s[len(s)-1]
		if level >= '1' && level <= '6' {
			return "h" + string(level)
		}
	}
	return "p"
}
