//go:build dev

package resources

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
)

// staticDir locates the static directory next to this source file so
// edits show up without a rebuild.
func staticDir() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return StaticDirectoryPath
	}
	return filepath.Join(filepath.Dir(filename), "static")
}

// Dev reports whether assets are served from the filesystem.
const Dev = true

func staticFiles() fs.FS {
	return os.DirFS(staticDir())
}

// Handler serves assets from the filesystem without caching.
func Handler() http.Handler {
	slog.Info("static assets served from filesystem", "path", staticDir())
	fileServer := http.StripPrefix(urlPrefix, http.FileServer(http.FS(staticFiles())))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	})
}

// StaticPath returns the URL of an asset, versioned by its current content.
func StaticPath(path string) string {
	return versioned(staticFiles(), path, false)
}
