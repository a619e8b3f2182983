// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachiq/internal/cache"
	"github.com/briangreenhill/coachiq/internal/coach"
	"github.com/briangreenhill/coachiq/internal/coachctx"
	"github.com/briangreenhill/coachiq/internal/config"
	"github.com/briangreenhill/coachiq/internal/http/routes"
	"github.com/briangreenhill/coachiq/internal/metrics"
	"github.com/briangreenhill/coachiq/internal/prompt"
	"github.com/briangreenhill/coachiq/internal/store"
)

func main() {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger = logger.Level(cfg.Level())
	logger.Info().Str("port", cfg.Port).Str("backend", cfg.Coach.Backend).Msg("starting api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db error")
	}
	defer pool.Close()
	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewManager("coachiq", "api", reg)

	// Prompts, context and provider
	templates := prompt.LoadWithFallback(cfg.PromptPath, logger)
	win := coachctx.DefaultWindow()
	win.Days = cfg.Context.Days
	assembler, err := coachctx.New(coachctx.WithWindow(win), coachctx.WithTemplates(templates))
	if err != nil {
		logger.Fatal().Err(err).Msg("context assembler")
	}
	coachOpts := []coach.Option{
		coach.WithLogger(logger),
		coach.WithMetrics(m),
		coach.WithTemplates(templates),
	}
	if cfg.Coach.CacheDir != "" {
		fc, err := cache.NewFileCache(cfg.Coach.CacheDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("completion cache")
		}
		coachOpts = append(coachOpts, coach.WithCompletionCache(fc, cfg.Coach.CacheTTL))
	}
	provider, err := coach.New(cfg.Coach, coachOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("coaching provider")
	}
	if !provider.Available() {
		logger.Warn().Str("provider", provider.Name()).Msg("COACH_API_KEY not set, coaching replies will be degraded")
	}

	// Queue for background analyses
	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Error().Err(err).Msg("close queue client")
		}
	}()

	// Sessions
	sess := scs.New()
	sess.Lifetime = cfg.SessionLifetime
	sess.Cookie.HttpOnly = true
	sess.Cookie.SameSite = http.SameSiteLaxMode
	sess.Cookie.Secure = false

	// Router / server
	s := routes.New(routes.ServerOptions{
		Sess:      sess,
		Store:     st,
		Assembler: assembler,
		Provider:  provider,
		Queue:     queue,
		Metrics:   m,
		Gatherer:  reg,
		MaxTokens: cfg.Context.MaxTokens,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("listen")
	}
	logger.Info().Msg("api stopped")
}
