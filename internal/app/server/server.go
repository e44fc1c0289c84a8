package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"card-compare-engine/internal/api"
	"card-compare-engine/internal/cache"
	"card-compare-engine/internal/catalog"
	"card-compare-engine/internal/config"
	"card-compare-engine/internal/engine"
	"card-compare-engine/internal/listener"
	"card-compare-engine/internal/observability"
	"card-compare-engine/internal/service"
	"card-compare-engine/internal/storage"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracing, err := observability.InitTracing(rootCtx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init tracing")
	}

	// Storage
	if cfg.Postgres.RunMigrations {
		if err := storage.RunMigrations(cfg.DSN()); err != nil {
			log.Fatal().Err(err).Msg("run migrations")
		}
	}
	store, err := storage.New(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	defer store.Close()

	// Catalog
	cat := catalog.New()
	if err := cat.Refresh(rootCtx, store, time.Now()); err != nil {
		log.Fatal().Err(err).Msg("initial catalog load")
	}
	log.Info().Int("campaigns", cat.Size()).Msg("catalog loaded")

	// Result cache
	results, closeResults := resultCache(rootCtx, cfg)
	defer closeResults()

	svc := service.New(cat, newEngine(cfg), service.WithResultCache(results, cfg.ResultTTL()))

	// HTTP
	r := api.Router(api.NewHandler(svc), api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Timeout:        cfg.RequestTimeout(),
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Listener (LISTEN/NOTIFY) with a periodic refresh as fallback
	go listener.ListenAndRefresh(rootCtx, store, cat, cfg.Listener.Channel, cfg.Backoff())
	go StartPeriodicRefresh(rootCtx, cat, store, cfg.RefreshInterval())

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	waitForSignal()
	log.Info().Msg("shutdown...")

	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shCancel()
	cancel() // stop background goroutines
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownTracing(shCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
}

// StartPeriodicRefresh reloads the catalog every interval until ctx is done.
func StartPeriodicRefresh(ctx context.Context, cat *catalog.Catalog, src catalog.Source, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cat.Refresh(ctx, src, time.Now()); err != nil {
				log.Error().Err(err).Msg("periodic catalog refresh")
			}
		}
	}
}

func newEngine(cfg config.Config) *engine.Engine {
	if cfg.Matcher.Mode == "similarity" {
		log.Info().Float64("threshold", cfg.Matcher.Threshold).Msg("similarity matcher enabled")
		return engine.New(engine.WithMatcher(engine.NewSimilarityMatcher(cfg.Matcher.Threshold, cfg.Matcher.CacheSize)))
	}
	return engine.New()
}

func resultCache(ctx context.Context, cfg config.Config) (cache.Results, func()) {
	if cfg.Redis.URL == "" {
		return cache.Noop{}, func() {}
	}
	rc, err := cache.NewRedisResults(ctx, cfg.Redis.URL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable; result cache disabled")
		return cache.Noop{}, func() {}
	}
	return rc, func() { _ = rc.Close() }
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
