package main

import (
	"context"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachiq/internal/cache"
	"github.com/briangreenhill/coachiq/internal/coach"
	"github.com/briangreenhill/coachiq/internal/coachctx"
	"github.com/briangreenhill/coachiq/internal/config"
	"github.com/briangreenhill/coachiq/internal/jobs"
	"github.com/briangreenhill/coachiq/internal/metrics"
	"github.com/briangreenhill/coachiq/internal/prompt"
	"github.com/briangreenhill/coachiq/internal/store"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger = logger.Level(cfg.Level())

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer pool.Close()

	m := metrics.NewManager("coachiq", "worker", prometheus.DefaultRegisterer)
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

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency:    4,
		StrictPriority: false,
		Queues: map[string]int{
			jobs.QueueCoach: 10, // higher priority
			"default":       5,  // default priority
		},
	})
	mux := asynq.NewServeMux()
	mux.Handle(jobs.TaskAnalyzeAthlete, &jobs.AnalyzeHandler{
		Store:     store.New(pool),
		Assembler: assembler,
		Provider:  provider,
		MaxTokens: cfg.Context.MaxTokens,
		Log:       logger,
		Metrics:   m,
	})

	logger.Info().Str("provider", provider.Name()).Bool("available", provider.Available()).Msg("worker running")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}
