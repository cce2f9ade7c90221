// Package web serves the local dashboard API over the tracker's state.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upvigil/upvigil/internal/api"
	"github.com/upvigil/upvigil/internal/tracker"
)

// NewRouter creates the dashboard HTTP router.
func NewRouter(tr *tracker.Tracker, svc *api.Client, editToken string, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", HandleHealthz())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", HandleStatus(tr))
		r.Get("/device", HandleDevice(tr))
		r.Get("/timeline", HandleTimeline(tr))
		r.Get("/listing", HandleListing(tr))
		r.Post("/refresh", HandleRefresh(tr))

		// Management passthroughs, available only when an edit token is
		// configured.
		if editToken != "" {
			r.Post("/events/{id}/toggle", HandleToggleEvent(svc, tr, editToken))
			r.Post("/events/{id}/comment", HandleAddComment(svc, tr, editToken))
		}
	})

	return r
}
