// Package archive packages exported documents and delivers the result.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// Entry is one file in an archive.
type Entry struct {
	Name    string
	Content []byte
}

// Build writes entries into a zip archive. Entry names must be unique.
func Build(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, errors.New("archive: no entries")
	}

	seen := make(map[string]struct{}, len(entries))
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	now := time.Now()

	for _, e := range entries {
		name := path.Clean(strings.TrimPrefix(e.Name, "/"))
		if name == "." || strings.HasPrefix(name, "../") {
			return nil, fmt.Errorf("archive: invalid entry name %q", e.Name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("archive: duplicate entry %q", name)
		}
		seen[name] = struct{}{}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return nil, fmt.Errorf("archive: failed to add %s: %w", name, err)
		}
		if _, err := w.Write(e.Content); err != nil {
			return nil, fmt.Errorf("archive: failed to write %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: failed to finalize: %w", err)
	}
	return buf.Bytes(), nil
}

// Namer assigns unique document names within one export.
type Namer struct {
	prefix string
	used   map[string]int
}

// NewNamer creates a namer whose positional fallback is prefix_N.
func NewNamer(prefix string) *Namer {
	if prefix == "" {
		prefix = "documento"
	}
	return &Namer{prefix: prefix, used: make(map[string]int)}
}

// Name returns a unique file name for row (zero-based). The base is the
// slugged hint when non-empty, otherwise prefix_N. Collisions get -2, -3...
func (n *Namer) Name(row int, hint, ext string) string {
	base := Slug(hint)
	if base == "" {
		base = n.prefix + "_" + strconv.Itoa(row+1)
	}

	n.used[base]++
	if c := n.used[base]; c > 1 {
		candidate := base + "-" + strconv.Itoa(c)
		for n.used[candidate] > 0 {
			c++
			candidate = base + "-" + strconv.Itoa(c)
		}
		n.used[candidate]++
		base = candidate
	}
	return base + ext
}
