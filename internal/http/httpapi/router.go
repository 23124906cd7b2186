// Package httpapi assembles the chi router for the composition API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"fitstudio/internal/http/handlers"
	"fitstudio/internal/infra"
	"fitstudio/internal/middleware"
	"fitstudio/internal/telemetry"
)

// Options selects the optional outer layers around the core routes.
type Options struct {
	EmbedTokenSecret string
	CORSOrigins      []string
	// Limiter is the distributed limiter; Fallback limits in process when no
	// Redis is configured.
	Limiter         *middleware.RedisLimiter
	FallbackLimit   int
	FallbackPer     time.Duration
	ServeLocalFiles bool
	Logger          infra.Logger
}

// NewRouter wires middlewares and routes around the handler set.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
	)
	if len(opts.CORSOrigins) > 0 {
		r.Use(middleware.CORS(opts.CORSOrigins))
	}

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", telemetry.Handler())
	if opts.ServeLocalFiles {
		r.Get("/static/*", app.Asset)
	}

	r.Group(func(r chi.Router) {
		switch {
		case opts.Limiter != nil:
			r.Use(opts.Limiter.Middleware)
		case opts.FallbackLimit > 0:
			r.Use(middleware.RateLimit(opts.FallbackLimit, opts.FallbackPer))
		}
		r.Use(middleware.AuthStore(opts.EmbedTokenSecret))

		r.Route("/v1/compositions", func(r chi.Router) {
			r.Post("/", app.CreateComposition)
			r.Get("/", app.ListCompositions)
			r.Get("/stream", app.StreamEvents)
			r.Get("/{job_id}", app.GetComposition)
		})
	})

	return r
}
