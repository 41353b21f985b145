package runs

import (
	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/leapdoc/internal/ui/views"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// SetupRoutes registers the run history routes.
func SetupRoutes(router chi.Router, store core.Store, v *views.Views) error {
	handlers := NewHandlers(store, v)

	router.Get("/runs", handlers.RunsPage)
	router.Get("/runs/{id}", handlers.RunPage)

	return nil
}
