package commands

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed all:templates
var templateFS embed.FS

// dotfiles are stored without their leading dot so go:embed picks them up.
var dotfiles = map[string]string{
	"gitignore": ".gitignore",
}

// starterFile is one file of an embedded starter project.
type starterFile struct {
	src string // path inside templateFS
	rel string // slash-separated path in the new project
}

func starterFiles(name string) ([]starterFile, error) {
	root := path.Join("templates", name)
	if _, err := fs.Stat(templateFS, root); err != nil {
		return nil, fmt.Errorf("unknown starter project %q", name)
	}

	var files []starterFile
	err := fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel := strings.TrimPrefix(p, root+"/")
		if renamed, ok := dotfiles[path.Base(rel)]; ok {
			rel = path.Join(path.Dir(rel), renamed)
		}
		files = append(files, starterFile{src: p, rel: rel})
		return nil
	})
	return files, err
}

// copyTemplate writes a starter project into targetDir. Existing files are
// left alone unless force is set.
func copyTemplate(name, targetDir string, force bool) error {
	files, err := starterFiles(name)
	if err != nil {
		return err
	}

	for _, f := range files {
		target := filepath.Join(targetDir, filepath.FromSlash(f.rel))
		if !force {
			if _, err := os.Stat(target); err == nil {
				continue
			}
		}
		content, err := templateFS.ReadFile(f.src)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.rel, err)
		}
	}
	return nil
}

// listTemplateFiles returns the project paths of a starter project.
func listTemplateFiles(name string) ([]string, error) {
	files, err := starterFiles(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.rel
	}
	return out, nil
}

// groupTemplateFiles sorts project paths into config, data and templates
// for the init summary.
func groupTemplateFiles(files []string) map[string][]string {
	groups := map[string][]string{"config": {}, "data": {}, "templates": {}}

	for _, f := range files {
		top, _, nested := strings.Cut(filepath.ToSlash(f), "/")
		group := "config"
		if nested {
			switch top {
			case "dados":
				group = "data"
			case "modelos":
				group = "templates"
			}
		}
		groups[group] = append(groups[group], f)
	}
	return groups
}
