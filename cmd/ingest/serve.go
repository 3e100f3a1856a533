package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mediaingest/internal/cache"
	"mediaingest/internal/config"
	"mediaingest/internal/database"
	"mediaingest/internal/handlers"
	"mediaingest/internal/jobs"
	"mediaingest/internal/log"
	"mediaingest/internal/media/normalizer"
	"mediaingest/internal/media/validator"
	"mediaingest/internal/moderation"
	"mediaingest/internal/repository"
	"mediaingest/internal/server"
	"mediaingest/internal/service"
	"mediaingest/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func serve(parent context.Context, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if migrate {
		if err := database.Migrate(cfg.Postgres.DSN, logger); err != nil {
			return err
		}
	}

	policy, err := moderation.PolicyFor(cfg)
	if err != nil {
		return err
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return &config.ConfigurationError{Field: "postgres", Err: err}
	}
	defer dbPool.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return &config.ConfigurationError{Field: "redis", Err: err}
	}
	defer redisClient.Close()

	objectStore, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return &config.ConfigurationError{Field: "storage", Err: err}
	}
	if closer, ok := objectStore.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		return &config.ConfigurationError{Field: "storage.bucket", Err: err}
	}

	var classifier moderation.Classifier = moderation.DisabledClassifier{}
	if cfg.Moderation.Provider == "vision" {
		classifier = moderation.NewVisionClassifier(cfg.Moderation, &http.Client{})
	} else {
		logger.Warn().Str("policy", policy.Name()).Msg("moderation provider disabled, every upload goes through the failure policy")
	}

	photos := repository.NewPhotoRepository(dbPool, cfg.Postgres.QueryTimeout)
	pipeline := service.NewPipeline(service.Dependencies{
		Validator:  validator.New(cfg.Upload),
		Normalizer: normalizer.New(cfg.Upload.JPEGQuality, normalizer.DefaultMaxFrames),
		Moderator:  moderation.NewClient(classifier, policy, cfg.Moderation, logger),
		Store:      storage.NewUploader(objectStore, cfg.Storage.CacheControl, cfg.Storage.Timeout),
		Recorder:   photos,
		Events:     service.NewRedisEventPublisher(redisClient, cfg.Redis.Stream),
	}, logger)

	probes := map[string]func(context.Context) error{
		"database": dbPool.Ping,
		"cache":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"storage":  objectStore.Ping,
	}
	httpProbes := make(map[string]handlers.Probe, len(probes))
	jobProbes := make(map[string]jobs.Probe, len(probes))
	for name, probe := range probes {
		httpProbes[name] = probe
		jobProbes[name] = probe
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, pipeline, photos, httpProbes)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(cfg.Jobs.HealthSpec, jobProbes, logger)
	if err := scheduler.Start(); err != nil {
		return &config.ConfigurationError{Field: "jobs.healthspec", Err: err}
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("storage_driver", cfg.Storage.Driver).
		Str("bucket", objectStore.Bucket()).
		Str("moderation_policy", policy.Name()).
		Msg("pipeline ready")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		scheduler.Stop(shutdownCtx)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("server exited cleanly")
	return nil
}
