package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter mounts the handlers behind the standard middleware stack.
func NewRouter(h *Handlers, cfg RouterConfig) chi.Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/classify", h.Classify)
		r.Post("/analyze", h.Analyze)

		r.Route("/audits", func(r chi.Router) {
			r.Post("/", h.CreateAudit)
			r.Get("/", h.ListAudits)
			r.Get("/{jobID}", h.GetAudit)
			r.Get("/{jobID}/products", h.GetAuditProducts)
			r.Get("/{jobID}/report", h.GetAuditReport)
			r.Get("/{jobID}/report.xlsx", h.DownloadAuditReport)
		})

		if h.runs != nil {
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", h.ListRuns)
				r.Get("/{runID}", h.GetRun)
				r.Get("/{runID}/products", h.GetRunProducts)
			})
		}
	})

	return r
}
