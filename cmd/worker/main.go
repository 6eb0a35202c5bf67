// Command worker processes orphan sweep tasks from the asynq queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/mediavault/internal/config"
	"github.com/dharsanguruparan/mediavault/internal/database"
	"github.com/dharsanguruparan/mediavault/internal/logger"
	"github.com/dharsanguruparan/mediavault/internal/queue"
	"github.com/dharsanguruparan/mediavault/internal/repository"
	"github.com/dharsanguruparan/mediavault/internal/s3storage"
	"github.com/dharsanguruparan/mediavault/internal/storage"
	"github.com/dharsanguruparan/mediavault/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.RepositoryDriver != config.DriverPostgres {
		return errors.New("the sweep worker needs REPOSITORY_DRIVER=postgres to see saved records")
	}
	log, err := logger.New(cfg.AppMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	repo := repository.NewMediaRepository(pool)

	var objects worker.Objects
	switch cfg.StorageDriver {
	case config.DriverLocal:
		disk, err := storage.NewDiskObjects(cfg.LocalStorageDir, cfg.PublicURL+"/objects", cfg.SigningSecret)
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		objects = disk
	default:
		s3, err := s3storage.New(cfg)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		objects = s3
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})
	mux := worker.NewProcessor(repo, objects, queue.NewScheduler(client), cfg.SweepGrace, log).Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info("sweep worker started", zap.Duration("grace", cfg.SweepGrace))
	if err := server.Run(mux); err != nil {
		return fmt.Errorf("run worker: %w", err)
	}
	return nil
}
