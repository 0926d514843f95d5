package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"videoexpress/internal/http/handlers"
	"videoexpress/internal/infra"
	"videoexpress/internal/middleware"
)

// RouterOptions carries the config the middleware chain needs.
type RouterOptions struct {
	JWTSecret          string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	StaticDir          string
	Logger             infra.Logger
}

// NewRouter assembles the API surface. Everything under /v1 except the
// health probe requires a bearer token. /static serves stored assets so the
// provider can fetch source images back.
func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSAllowedOrigins),
	)
	if opts.RateLimitPerMinute > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMinute, time.Minute))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(opts.JWTSecret))

			r.Route("/videos", func(r chi.Router) {
				r.Post("/", app.VideoCreate)
				r.Get("/", app.VideoList)
				r.Get("/stats", app.VideoStats)
				r.Get("/{job_id}", app.VideoGet)
				r.Delete("/{job_id}", app.VideoDelete)
				r.Get("/{job_id}/download", app.VideoDownload)
			})

			r.Route("/credits", func(r chi.Router) {
				r.Get("/", app.CreditStatus)
				r.Post("/reset", app.CreditReset)
			})
		})
	})

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", func(w http.ResponseWriter, req *http.Request) {
			fs.ServeHTTP(w, req)
		})
	}

	return r
}
