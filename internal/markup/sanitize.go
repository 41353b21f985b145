package markup

import (
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// layoutStyles are the inline CSS properties generated layouts may use.
var layoutStyles = []string{
	"color", "background-color", "background", "border", "border-bottom",
	"border-top", "border-left", "border-right", "border-collapse",
	"border-radius", "font-family", "font-size", "font-style", "font-weight",
	"line-height", "letter-spacing", "margin", "margin-top", "margin-bottom",
	"margin-left", "margin-right", "padding", "padding-top", "padding-bottom",
	"padding-left", "padding-right", "text-align", "text-decoration",
	"text-transform", "vertical-align", "width", "max-width", "height",
	"display", "gap", "box-shadow",
}

// Policy returns the sanitiser for generated layouts. It keeps the marker
// attributes and inline presentation styles; scripts and event handlers are
// removed.
func Policy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowElements("section", "article", "header", "footer", "main", "figure", "figcaption")
		p.AllowAttrs(AttrField, AttrIssue, AttrHook, "class").Globally()
		p.AllowStyles(layoutStyles...).Globally()
		policy = p
	})
	return policy
}

// Sanitize cleans generated markup.
func Sanitize(fragment string) string {
	return strings.TrimSpace(Policy().Sanitize(fragment))
}

var codeFence = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\\n?(.*?)\\n?\\s*```\\s*$")

// StripCodeFence removes a surrounding markdown code fence, which generation
// services often add around markup.
func StripCodeFence(s string) string {
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// BodyContent extracts the inner markup of <body> when a full page is
// returned instead of a fragment.
func BodyContent(s string) string {
	lower := strings.ToLower(s)
	start := strings.Index(lower, "<body")
	if start < 0 {
		return s
	}
	open := strings.Index(lower[start:], ">")
	if open < 0 {
		return s
	}
	content := s[start+open+1:]
	if end := strings.LastIndex(strings.ToLower(content), "</body>"); end >= 0 {
		content = content[:end]
	}
	return strings.TrimSpace(content)
}
