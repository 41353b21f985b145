package markup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Marker is one field marker found in a fragment.
type Marker struct {
	Field string
	Text  string
	Issue string
	Hook  string
}

// Invalid reports whether the overlay has flagged this marker.
func (m Marker) Invalid() bool {
	return m.Issue != ""
}

// Fragment is a parsed markup fragment that can be queried and edited.
type Fragment struct {
	root *html.Node
	doc  *goquery.Document
}

// Parse parses a markup fragment in a body context. Leading style elements
// stay where they are instead of moving into a synthesized head.
func Parse(fragment string) (*Fragment, error) {
	root, err := parseBody(fragment)
	if err != nil {
		return nil, err
	}
	return &Fragment{root: root, doc: goquery.NewDocumentFromNode(root)}, nil
}

func parseBody(fragment string) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return body, nil
}

// Markers returns every marker in document order.
func (f *Fragment) Markers() []Marker {
	var out []Marker
	f.doc.Find(Selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, Marker{
			Field: s.AttrOr(AttrField, ""),
			Text:  s.Text(),
			Issue: s.AttrOr(AttrIssue, ""),
			Hook:  s.AttrOr(AttrHook, ""),
		})
	})
	return out
}

// Fields returns the marker keys in document order.
func (f *Fragment) Fields() []string {
	markers := f.Markers()
	out := make([]string, len(markers))
	for i, m := range markers {
		out[i] = m.Field
	}
	return out
}

// ClearOverlay removes every highlight, message and hook left by a previous
// validation run. It returns the number of markers that were touched.
func (f *Fragment) ClearOverlay() int {
	touched := 0
	f.doc.Find(Selector).Each(func(_ int, s *goquery.Selection) {
		_, hasIssue := s.Attr(AttrIssue)
		_, hasHook := s.Attr(AttrHook)
		if !hasIssue && !hasHook && !s.HasClass(ClassInvalid) {
			return
		}
		s.RemoveClass(ClassInvalid)
		tidyClass(s)
		s.RemoveAttr(AttrIssue)
		s.RemoveAttr(AttrHook)
		touched++
	})
	return touched
}

// Mark flags every marker for field with message and hook. A marker that is
// already flagged keeps its hook and gets the message appended.
// It returns the number of markers flagged.
func (f *Fragment) Mark(field, message, hook string) int {
	count := 0
	f.doc.Find(Selector).Each(func(_ int, s *goquery.Selection) {
		if s.AttrOr(AttrField, "") != field {
			return
		}
		s.AddClass(ClassInvalid)
		tidyClass(s)
		if prev, ok := s.Attr(AttrIssue); ok && prev != "" {
			s.SetAttr(AttrIssue, prev+"; "+message)
		} else {
			s.SetAttr(AttrIssue, message)
		}
		if _, ok := s.Attr(AttrHook); !ok {
			s.SetAttr(AttrHook, hook)
		}
		count++
	})
	return count
}

// Unwrap removes markers whose field is rejected by keep, leaving their
// content in place. It returns the removed field names.
func (f *Fragment) Unwrap(keep func(field string) bool) []string {
	var removed []string
	f.doc.Find(Selector).Each(func(_ int, s *goquery.Selection) {
		field := s.AttrOr(AttrField, "")
		if keep(field) {
			return
		}
		removed = append(removed, field)
		s.ReplaceWithSelection(s.Contents())
	})
	return removed
}

// Normalize gives every marker the marker class and drops empty field keys.
func (f *Fragment) Normalize() {
	f.doc.Find(Selector).Each(func(_ int, s *goquery.Selection) {
		field := strings.TrimSpace(s.AttrOr(AttrField, ""))
		if field == "" {
			s.ReplaceWithSelection(s.Contents())
			return
		}
		s.SetAttr(AttrField, field)
		s.AddClass(ClassMarker)
		tidyClass(s)
	})
}

// tidyClass collapses the class list of s to single-space separators.
func tidyClass(s *goquery.Selection) {
	if class, ok := s.Attr("class"); ok {
		s.SetAttr("class", strings.Join(strings.Fields(class), " "))
	}
}

// HTML renders the fragment back to markup.
func (f *Fragment) HTML() (string, error) {
	return renderChildren(f.root)
}

func renderChildren(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("failed to render fragment: %w", err)
		}
	}
	return buf.String(), nil
}

// PageContent turns a full page into a fragment: the style elements of its
// head followed by the content of its body. Input without a body tag is
// returned unchanged.
func PageContent(page string) (string, error) {
	if !strings.Contains(strings.ToLower(page), "<body") {
		return page, nil
	}
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	var head, body *html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head:
				head = n
			case atom.Body:
				body = n
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)

	var buf bytes.Buffer
	if head != nil {
		for c := head.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Style {
				if err := html.Render(&buf, c); err != nil {
					return "", fmt.Errorf("failed to render page styles: %w", err)
				}
			}
		}
	}
	if body != nil {
		content, err := renderChildren(body)
		if err != nil {
			return "", err
		}
		buf.WriteString(strings.TrimSpace(content))
	}
	return buf.String(), nil
}

// Markers is a convenience wrapper that parses fragment and lists its markers.
func Markers(fragment string) ([]Marker, error) {
	f, err := Parse(fragment)
	if err != nil {
		return nil, err
	}
	return f.Markers(), nil
}

// Fields parses fragment and lists its marker keys in document order.
func Fields(fragment string) ([]string, error) {
	f, err := Parse(fragment)
	if err != nil {
		return nil, err
	}
	return f.Fields(), nil
}
