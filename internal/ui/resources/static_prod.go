//go:build !dev

package resources

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// Dev reports whether assets are served from the filesystem.
const Dev = false

func staticFiles() fs.FS {
	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("resources: embedded static directory missing: " + err.Error())
	}
	return fsys
}

// Handler serves the embedded assets. Versioned URLs are immutable.
func Handler() http.Handler {
	fileServer := http.StripPrefix(urlPrefix, http.FileServer(http.FS(staticFiles())))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("v") {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		}
		fileServer.ServeHTTP(w, r)
	})
}

// StaticPath returns the versioned URL of an asset.
func StaticPath(path string) string {
	return versioned(staticFiles(), path, true)
}
