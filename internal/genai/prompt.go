package genai

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

//go:embed prompts/*.tpl
var promptFiles embed.FS

// Prompt template names.
const (
	PromptLayout    = "layout.tpl"
	PromptMapping   = "mapping.tpl"
	PromptValidate  = "validate.tpl"
	PromptAnalyze   = "analyze.tpl"
	PromptTransform = "transform.tpl"
)

var (
	promptOnce sync.Once
	promptSet  *pongo2.TemplateSet
	promptMu   sync.RWMutex
	prompts    = make(map[string]*pongo2.Template)
)

func templateSet() *pongo2.TemplateSet {
	promptOnce.Do(func() {
		sub, err := fs.Sub(promptFiles, "prompts")
		if err != nil {
			panic(fmt.Sprintf("genai: embedded prompts missing: %v", err))
		}
		promptSet = pongo2.NewSet("leapdoc-prompts", pongo2.NewFSLoader(sub))
	})
	return promptSet
}

func getPrompt(name string) (*pongo2.Template, error) {
	promptMu.RLock()
	if tpl, ok := prompts[name]; ok {
		promptMu.RUnlock()
		return tpl, nil
	}
	promptMu.RUnlock()

	promptMu.Lock()
	defer promptMu.Unlock()

	if tpl, ok := prompts[name]; ok {
		return tpl, nil
	}
	tpl, err := templateSet().FromFile(name)
	if err != nil {
		return nil, fmt.Errorf("genai: load prompt %q: %w", name, err)
	}
	prompts[name] = tpl
	return tpl, nil
}

// RenderPrompt renders an embedded prompt template.
func RenderPrompt(name string, data map[string]any) (string, error) {
	tpl, err := getPrompt(name)
	if err != nil {
		return "", err
	}
	out, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return "", fmt.Errorf("genai: render prompt %q: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}
