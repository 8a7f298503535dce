package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/http/handlers"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/middleware"
)

// Options configures the cross-cutting middleware around the handlers.
type Options struct {
	Tokens          middleware.TokenChecker
	CountryLookup   middleware.CountryLookup
	DefaultLocale   string
	AllowedOrigins  []string
	RateLimitPerMin int
	// StaticDir, when set, serves locally stored artifacts under /static.
	StaticDir string
	Logger    zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Handle("/metrics", promhttp.Handler())
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(opts.Tokens, app.RejectToken))

			r.Get("/sd/controlnet/types", app.ControlNetTypes)
			r.Get("/drawings/{id}", app.GetDrawing)
			r.Get("/me/frequency", app.Frequency)

			r.Group(func(r chi.Router) {
				if opts.RateLimitPerMin > 0 {
					r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
				}
				r.Post("/sd/text", app.DrawText)
				r.Post("/sd/image", app.DrawImage)
				r.Post("/sd/random", app.DrawRandom)
			})
		})
	})

	return r
}
