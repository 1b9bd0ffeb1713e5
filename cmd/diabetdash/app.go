package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Cristi184/diabetDashApp-sub000/internal/config"
	"github.com/Cristi184/diabetDashApp-sub000/internal/logger"
	"github.com/Cristi184/diabetDashApp-sub000/internal/realtime"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage/postgres"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage/sqlite"
)

// app holds what every subcommand needs.
type app struct {
	cfg    *config.Config
	loc    *time.Location
	logger zerolog.Logger
	store  storage.Store
	// pg is set when the store is PostgreSQL.
	pg *postgres.Store
}

// loadConfig reads .env into the environment, then loads and validates the config.
func loadConfig() (*config.Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, loc: loc, logger: log}
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		pg, err := postgres.NewStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.store, a.pg = pg, pg
	default:
		store, err := sqlite.NewFileStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	log.Debug().Str("driver", cfg.StoreDriver).Msg("store opened")
	return a, nil
}

// messageStore returns the store chat writes go through. PostgreSQL publishes row changes
// itself through triggers and a Listener; SQLite needs the publishing decorator.
func (a *app) messageStore(pub realtime.Publisher) storage.MessageStore {
	if a.pg != nil {
		return a.store
	}
	return realtime.NewPublishingStore(a.store, pub, a.logger)
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close store")
	}
}
