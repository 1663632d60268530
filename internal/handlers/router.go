package handlers

import (
	"net/http"
	"time"

	"riskgate/internal/metrics"
	"riskgate/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	AllowedOrigins []string
	Timeout        time.Duration
	Middleware     *middleware.Middleware
	Metrics        *metrics.Metrics
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mw := opts.Middleware
	if mw == nil {
		mw = middleware.New(nil, h.Logger, "")
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(opts.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.RateLimiter)
		r.Post("/evaluate", h.Evaluate)
		r.Post("/token/verify", h.VerifyToken)
		r.Get("/blacklist/{clientId}", h.Blacklisted)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAPIKey)
			r.Post("/failures", h.RecordFailure)
			r.Get("/preferences", h.GetPreferences)
			r.Put("/preferences", h.PutPreferences)
		})
	})
	return r
}
