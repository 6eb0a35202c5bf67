// Command server runs the MediaVault HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/mediavault/internal/api"
	"github.com/dharsanguruparan/mediavault/internal/auth"
	"github.com/dharsanguruparan/mediavault/internal/cache"
	"github.com/dharsanguruparan/mediavault/internal/config"
	"github.com/dharsanguruparan/mediavault/internal/database"
	"github.com/dharsanguruparan/mediavault/internal/logger"
	"github.com/dharsanguruparan/mediavault/internal/queue"
	"github.com/dharsanguruparan/mediavault/internal/repository"
	"github.com/dharsanguruparan/mediavault/internal/s3storage"
	"github.com/dharsanguruparan/mediavault/internal/service"
	"github.com/dharsanguruparan/mediavault/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
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
	log, err := logger.New(cfg.AppMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	var repo service.Repository
	switch cfg.RepositoryDriver {
	case config.DriverMemory:
		log.Warn("using in-memory repository, records are lost on restart")
		repo = storage.NewMemoryStore()
	default:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		repo = repository.NewMediaRepository(pool)
	}

	opts := service.Options{
		PresignPutTTL:  cfg.PresignPutTTL,
		ReadURLTTL:     cfg.ReadURLTTL,
		DownloadURLTTL: cfg.DownloadURLTTL,
		SweepDelay:     cfg.SweepDelay(),
		Logger:         log,
	}
	apiOpts := api.Options{Address: cfg.Address, AppMode: cfg.AppMode, Logger: log}

	var objects service.ObjectStore
	switch cfg.StorageDriver {
	case config.DriverLocal:
		disk, err := storage.NewDiskObjects(cfg.LocalStorageDir, cfg.PublicURL+"/objects", cfg.SigningSecret)
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		objects = disk
		apiOpts.Objects = disk
	default:
		s3, err := s3storage.New(cfg)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}
		objects = s3
	}

	if cfg.RedisEnabled {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		opts.Cache = cache.NewURLCache(rdb)

		queueClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
		opts.Sweeper = queue.NewScheduler(queueClient)
	} else {
		log.Warn("redis disabled, url cache and orphan sweeps are off")
	}

	svc := service.NewMediaService(repo, objects, opts)
	srv := api.New(svc, auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL), apiOpts)
	log.Info("starting mediavault",
		zap.String("storage", cfg.StorageDriver),
		zap.String("repository", cfg.RepositoryDriver),
	)
	return srv.Run(ctx)
}
