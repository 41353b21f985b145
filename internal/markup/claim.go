package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Substitution is a value that was inserted into a document for a field.
type Substitution struct {
	Field string
	Value string
}

// ClaimResult is the outcome of marking substituted values in converted markup.
type ClaimResult struct {
	Markup string
	// Unclaimed lists substitutions whose value could not be located.
	Unclaimed []Substitution
}

// Claim wraps substituted values in markers by searching the text of a
// fragment. Substitutions are processed in order, and each one claims the
// first occurrence of its value that no earlier substitution has claimed.
// Duplicate values therefore map to successive occurrences.
//
// This is the fallback for containers that cannot mark values while filling;
// text that merely happens to equal a value may be claimed instead.
func Claim(fragment string, subs []Substitution) (ClaimResult, error) {
	body, err := parseBody(fragment)
	if err != nil {
		return ClaimResult{}, err
	}

	var result ClaimResult
	for _, sub := range subs {
		if sub.Value == "" || !claimFirst(body, sub) {
			result.Unclaimed = append(result.Unclaimed, sub)
		}
	}

	out, err := renderChildren(body)
	if err != nil {
		return ClaimResult{}, err
	}
	result.Markup = out
	return result, nil
}

// claimFirst finds the first unclaimed text occurrence of sub.Value in
// document order and wraps it in a marker.
func claimFirst(root *html.Node, sub Substitution) bool {
	var found *html.Node
	var offset int

	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style || isMarker(n) {
				return false
			}
		}
		if n.Type == html.TextNode {
			if i := strings.Index(n.Data, sub.Value); i >= 0 {
				found, offset = n, i
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if !walk(root) {
		return false
	}

	splitAndWrap(found, offset, sub)
	return true
}

func splitAndWrap(text *html.Node, offset int, sub Substitution) {
	parent := text.Parent
	before := text.Data[:offset]
	after := text.Data[offset+len(sub.Value):]

	marker := &html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr: []html.Attribute{
			{Key: "class", Val: ClassMarker},
			{Key: AttrField, Val: sub.Field},
		},
	}
	marker.AppendChild(&html.Node{Type: html.TextNode, Data: sub.Value})

	if before != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: before}, text)
	}
	parent.InsertBefore(marker, text)
	if after != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: after}, text)
	}
	parent.RemoveChild(text)
}

func isMarker(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == AttrField {
			return true
		}
	}
	return false
}
