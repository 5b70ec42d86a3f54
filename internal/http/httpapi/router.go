package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra"
	mw "server/internal/middleware"
)

// NewRouter wires the public API surface.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger, countryLookup mw.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		mw.Logger(logger),
		mw.CORS(cfg.AllowedOrigins),
		mw.RateLimit(cfg.RateLimitPerMin, time.Minute),
		mw.I18N(cfg.DefaultLocale, countryLookup),
	)

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(mw.AuthJWT(cfg.JWTSecret))

		r.Route("/v1/advertorials", func(r chi.Router) {
			r.Post("/", app.SubmitAdvertorial)
			r.Get("/{job_id}", app.AdvertorialStatus)
			r.Get("/{job_id}/templates", app.AdvertorialTemplates)
			r.Get("/{job_id}/templates/export", app.ExportAdvertorialTemplates)
			r.Post("/{job_id}/regenerate", app.RegenerateAdvertorial)
		})
		r.Get("/v1/templates", app.ListTemplates)
		r.Get("/v1/credits", app.CreditUsage)
	})

	return r
}
