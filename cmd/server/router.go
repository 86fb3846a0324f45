package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/visor/internal/api"
	apiMiddleware "github.com/phrazzld/visor/internal/api/middleware"
)

// setupRouter creates the application router with all routes and
// middleware registered.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	queueHandler := api.NewQueueHandler(app.service, app.logger)
	searchHandler := api.NewSearchHandler(app.service, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/queue", func(r chi.Router) {
			r.Post("/folder", queueHandler.EnqueueFolder)
			r.Post("/process", queueHandler.Process)
			r.Post("/stop", queueHandler.Stop)
			r.Post("/clear", queueHandler.Clear)
			r.Get("/status", queueHandler.Status)
			r.Get("/tasks", queueHandler.Tasks)
		})
		r.Post("/search", searchHandler.Search)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
