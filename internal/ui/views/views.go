// Package views renders the preview server's pages and partials from
// embedded pongo2 templates.
package views

import (
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/leapstack-labs/leapdoc/internal/ui/resources"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Template names.
const (
	PageIndex   = "index.html"
	PageRuns    = "runs.html"
	PageRun     = "run.html"
	PartialApp  = "app.html"
	PartialDoc  = "document.html"
	PartialNote = "notice.html"
)

// Views caches parsed templates.
type Views struct {
	set *pongo2.TemplateSet

	mu    sync.RWMutex
	cache map[string]*pongo2.Template
}

// New creates a Views backed by the embedded templates.
func New() (*Views, error) {
	sub, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		return nil, fmt.Errorf("views: embedded templates missing: %w", err)
	}
	return &Views{
		set:   pongo2.NewSet("leapdoc-views", pongo2.NewFSLoader(sub)),
		cache: make(map[string]*pongo2.Template),
	}, nil
}

func (v *Views) template(name string) (*pongo2.Template, error) {
	v.mu.RLock()
	tpl, ok := v.cache[name]
	v.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if tpl, ok := v.cache[name]; ok {
		return tpl, nil
	}
	tpl, err := v.set.FromFile(name)
	if err != nil {
		return nil, fmt.Errorf("views: load %q: %w", name, err)
	}
	v.cache[name] = tpl
	return tpl, nil
}

// Render executes the named template with data exposed under "data" and
// the asset URL helper under "static".
func (v *Views) Render(name string, data any) (string, error) {
	tpl, err := v.template(name)
	if err != nil {
		return "", err
	}
	out, err := tpl.Execute(pongo2.Context{"data": data, "static": resources.StaticPath})
	if err != nil {
		return "", fmt.Errorf("views: render %q: %w", name, err)
	}
	return out, nil
}
