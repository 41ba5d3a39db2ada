package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/config"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/events"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/repository"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/repository/memory"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/repository/postgres"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage/local"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage/minio"
)

// app holds the backends selected by the configuration.
type app struct {
	repo      repository.Challenges
	store     storage.Storage
	publisher events.Publisher
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	if cfg.Database.DSN != "" {
		repo, err := postgres.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.repo = repo
		a.closers = append(a.closers, repo.Close)
		logger.Info().Msg("Using postgres repository")
	} else {
		a.repo = memory.NewChallengesRepository()
		logger.Warn().Msg("PORTABLE_DATABASE_DSN is not set, challenges are kept in memory")
	}

	switch cfg.Storage.Backend {
	case config.StorageMinio:
		store, err := minio.NewObjectStorage(ctx, minio.Config{
			Endpoint:      cfg.Storage.Minio.Endpoint,
			AccessKey:     cfg.Storage.Minio.AccessKey,
			SecretKey:     cfg.Storage.Minio.SecretKey,
			Bucket:        cfg.Storage.Minio.Bucket,
			UseSSL:        cfg.Storage.Minio.UseSSL,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.store = store
	default:
		store, err := local.NewLocalStorage(cfg.Storage.Dir, cfg.Storage.PublicBaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.store = store
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.publisher = publisher
		a.closers = append(a.closers, publisher.Close)
	} else {
		a.publisher = events.Nop{}
	}

	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
