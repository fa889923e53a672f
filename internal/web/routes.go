package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-people/internal/web/handlers"
	"github.com/kozaktomas/photo-people/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	peopleHandler := handlers.NewPeopleHandler(s.people)
	searchHandler := handlers.NewSearchHandler(s.search)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.config.Web.JWTSecret))

		// Search
		r.Get("/search", searchHandler.Assets)
		r.Get("/search/person", searchHandler.People)

		// People
		r.Get("/person", peopleHandler.List)
		r.Post("/person", peopleHandler.Create)
		r.Put("/person", peopleHandler.UpdateMany)
		r.Delete("/person", peopleHandler.Unassign)
		r.Get("/person/{id}", peopleHandler.Get)
		r.Put("/person/{id}", peopleHandler.Update)
		r.Put("/person/{id}/reassign", peopleHandler.Reassign)
		r.Post("/person/{id}/merge", peopleHandler.Merge)
		r.Get("/person/{id}/statistics", peopleHandler.Statistics)
		r.Get("/person/{id}/assets", peopleHandler.Assets)
	})
}
