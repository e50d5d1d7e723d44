package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-causality/internal/cache"
	"github.com/miradorstack/mirador-causality/internal/config"
	"github.com/miradorstack/mirador-causality/internal/engine"
	"github.com/miradorstack/mirador-causality/internal/repo"
)

// openStore builds the configured repository, wrapped with the probable cause cache.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repo.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var store repo.Store
	switch cfg.Repository.Driver {
	case config.DriverHTTP:
		store = repo.NewCauseStoreClient(cfg.Repository.HTTP.BaseURL, repo.CauseStorePaths{
			ProbableCauses:  cfg.Repository.HTTP.ProbableCausesPath,
			Evidence:        cfg.Repository.HTTP.EvidencePath,
			EvidencePage:    cfg.Repository.HTTP.EvidencePagePath,
			Incident:        cfg.Repository.HTTP.IncidentPath,
			CausalityData:   cfg.Repository.HTTP.CausalityDataPath,
			AttributeValues: cfg.Repository.HTTP.AttributeValuesPath,
		}, cfg.Repository.HTTP.Timeout)
	case config.DriverPostgres:
		pg, err := repo.OpenPostgresStore(ctx, cfg.Repository.Postgres.DSN, cfg.Repository.Postgres.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		store = pg
	case config.DriverFixture:
		fixture, err := repo.LoadFixtureFile(cfg.Repository.Fixture)
		if err != nil {
			return nil, err
		}
		store = fixture
	default:
		return nil, fmt.Errorf("unknown repository driver %q", cfg.Repository.Driver)
	}

	provider, err := cache.New(cfg.Cache.Backend, cache.ValkeyConfig{
		Addr:         cfg.Cache.Addr,
		Username:     cfg.Cache.Username,
		Password:     cfg.Cache.Password,
		DB:           cfg.Cache.DB,
		DialTimeout:  cfg.Cache.DialTimeout,
		ReadTimeout:  cfg.Cache.ReadTimeout,
		WriteTimeout: cfg.Cache.WriteTimeout,
		MaxRetries:   cfg.Cache.MaxRetries,
		TLS:          cfg.Cache.TLS,
	})
	if err != nil {
		logger.Warn("probable cause cache unavailable", slog.String("backend", cfg.Cache.Backend), slog.Any("error", err))
		return store, nil
	}
	if _, noop := provider.(cache.NoopProvider); noop {
		return store, nil
	}
	logger.Info("probable cause cache enabled", slog.String("backend", cfg.Cache.Backend), slog.Duration("ttl", cfg.Cache.ProbableCausesTTL))
	return repo.NewCachedStore(store, provider, cfg.Cache.ProbableCausesTTL, logger), nil
}

func newPipeline(cfg *config.Config, store repo.Store, logger *slog.Logger) *engine.Pipeline {
	return engine.NewPipeline(logger, store, nil, engine.Options{
		DisplayLimit:           cfg.Engine.DisplayLimit,
		Parallelism:            cfg.Engine.Parallelism,
		TimeSeriesDescription:  cfg.Engine.TimeSeriesDescription,
		CrossTypeNormalization: cfg.Engine.CrossTypeNormalization,
	})
}
