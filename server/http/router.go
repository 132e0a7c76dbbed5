package serverhttp

import (
	"github.com/go-chi/chi/v5"

	cmHnd "colmatch-service/internal/colmatch/handler"
	"colmatch-service/internal/middleware"
	"colmatch-service/server/http/handlers"
)

func NewRouter(d *cmHnd.Deps) *chi.Mux {
	r := chi.NewRouter()

	// порядок важен: recover -> requestID -> logging -> cors -> limit
	r.Use(middleware.Recover(d.Log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(d.Log))
	r.Use(middleware.CORS(d.Cfg.AllowOrigins))
	r.Use(middleware.LimitBytes(int64(d.Cfg.MaxUploadMB) * 1024 * 1024))

	// health-check
	r.Get("/health", handlers.Health)

	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", cmHnd.List(d))
		r.Post("/", cmHnd.Upload(d))
		r.Get("/{id}", cmHnd.Dataset(d))
		r.Delete("/{id}", cmHnd.Delete(d))
		r.Get("/{id}/rows", cmHnd.Rows(d))
		r.Post("/{id}/match", cmHnd.Match(d))
		r.Get("/{id}/download", cmHnd.Download(d))
		r.Post("/{id}/export", cmHnd.Export(d))
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/{id}", cmHnd.Job(d))
		r.Delete("/{id}", cmHnd.CancelJob(d))
	})

	return r
}
