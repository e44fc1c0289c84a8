package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"card-compare-engine/internal/observability"
)

type RouterOptions struct {
	AllowedOrigins []string
	Timeout        time.Duration
}

func Router(h *Handler, opts RouterOptions) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/compare", otelhttp.NewHandler(http.HandlerFunc(h.Compare), "api.compare"))
		r.Method(http.MethodGet, "/compare", otelhttp.NewHandler(http.HandlerFunc(h.Suggestions), "api.suggestions"))
		r.Method(http.MethodGet, "/banks", otelhttp.NewHandler(http.HandlerFunc(h.Banks), "api.banks"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
