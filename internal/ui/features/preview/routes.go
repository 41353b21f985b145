package preview

import (
	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers the preview workspace routes.
func SetupRoutes(router chi.Router, h *Handlers) error {
	router.Get("/", h.Page)
	router.Get("/export", h.ExportArchive)
	router.Get("/export/dataset", h.ExportDataset)

	router.Route("/api", func(r chi.Router) {
		r.Get("/updates", h.Updates)

		r.Post("/data", h.UploadData)
		r.Delete("/data", h.ClearData)
		r.Post("/template", h.UploadTemplate)
		r.Post("/layout/generated", h.UseGenerated)
		r.Delete("/layout", h.ClearLayout)

		r.Post("/mapping", h.SetMapping)
		r.Post("/mapping/confirm", h.ConfirmMapping)

		r.Post("/rows/{row}/select", h.SelectRow)
		r.Post("/granularity", h.ToggleGranularity)
		r.Post("/bulk", h.RenderAll)
		r.Post("/cells", h.EditCell)

		r.Post("/validate", h.Validate)
		r.Post("/validate/all", h.ValidateAll)
		r.Post("/hooks/{hook}", h.Activate)
		r.Post("/analyze", h.Analyze)

		r.Post("/credential", h.SaveCredential)
		r.Delete("/credential", h.RemoveCredential)
	})

	return nil
}
