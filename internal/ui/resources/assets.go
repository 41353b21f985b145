// Package resources serves the preview server's static assets.
package resources

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"sync"
)

// StaticDirectoryPath is the path to static assets from the project root.
const StaticDirectoryPath = "internal/ui/resources/static"

// urlPrefix is where Handler is mounted.
const urlPrefix = "/static/"

var (
	versionsMu sync.Mutex
	versions   = make(map[string]string)
)

// versioned appends a content hash to an asset path so browsers refetch
// it after a change. Unknown assets get the bare path.
func versioned(fsys fs.FS, path string, cache bool) string {
	if cache {
		versionsMu.Lock()
		defer versionsMu.Unlock()
		if v, ok := versions[path]; ok {
			return v
		}
	}

	url := urlPrefix + path
	data, err := fs.ReadFile(fsys, path)
	if err == nil {
		sum := sha256.Sum256(data)
		url += "?v=" + hex.EncodeToString(sum[:4])
	}
	if cache {
		versions[path] = url
	}
	return url
}
