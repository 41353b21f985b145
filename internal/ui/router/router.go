// Package router sets up HTTP routes for the preview server.
package router

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	previewFeature "github.com/leapstack-labs/leapdoc/internal/ui/features/preview"
	runsFeature "github.com/leapstack-labs/leapdoc/internal/ui/features/runs"
	"github.com/leapstack-labs/leapdoc/internal/ui/resources"
	"github.com/leapstack-labs/leapdoc/internal/ui/views"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/starfederation/datastar-go/datastar"
)

// SetupRoutes configures all routes of the preview server.
func SetupRoutes(
	router chi.Router,
	preview *previewFeature.Handlers,
	store core.Store,
	v *views.Views,
	isDev bool,
) error {
	// Hot reload endpoint for dev mode
	if isDev {
		setupReload(router)
	}

	router.Handle("/static/*", resources.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if err := previewFeature.SetupRoutes(router, preview); err != nil {
		return err
	}

	if err := runsFeature.SetupRoutes(router, store, v); err != nil {
		return err
	}

	return nil
}

func setupReload(router chi.Router) {
	reloadChan := make(chan struct{}, 1)
	var hotReloadOnce sync.Once

	router.Get("/reload", func(w http.ResponseWriter, r *http.Request) {
		sse := datastar.NewSSE(w, r)
		reload := func() { _ = sse.ExecuteScript("window.location.reload()") }
		hotReloadOnce.Do(reload)
		select {
		case <-reloadChan:
			reload()
		case <-r.Context().Done():
		}
	})

	router.Get("/hotreload", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case reloadChan <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}
