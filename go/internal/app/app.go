// Package app wires configured components into a running timer stack shared
// by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/catalog"
	"github.com/mcdev12/respawn/go/internal/command"
	"github.com/mcdev12/respawn/go/internal/config"
	"github.com/mcdev12/respawn/go/internal/reconcile"
	"github.com/mcdev12/respawn/go/internal/reconcile/boltcache"
	"github.com/mcdev12/respawn/go/internal/reconcile/sqlitecache"
	"github.com/mcdev12/respawn/go/internal/session"
	"github.com/mcdev12/respawn/go/internal/timers"
	"github.com/mcdev12/respawn/go/internal/timers/memory"
	"github.com/mcdev12/respawn/go/internal/timers/natskv"
	"github.com/mcdev12/respawn/go/internal/timers/postgres"
)

// App holds the components built from a Config.
type App struct {
	Config     config.Config
	Catalog    *catalog.Catalog
	Backend    timers.Backend
	Store      *timers.Store
	Reconciler *reconcile.Reconciler
	Parser     command.Parser
	Location   *time.Location
}

// Open builds every component. On error, whatever was opened is closed.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	parser, err := newParser(cfg, cat)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := timers.NewStore(backend)

	a := &App{
		Config:   cfg,
		Catalog:  cat,
		Backend:  backend,
		Store:    store,
		Parser:   parser,
		Location: loc,
	}

	cache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	if cache != nil {
		a.Reconciler = reconcile.New(cache, store)
		store.AddObserver(a.Reconciler)
	}

	log.Info().
		Str("backend", cfg.Backend).
		Str("cache", cfg.Cache.Driver).
		Str("parser", cfg.Parser).
		Str("timezone", loc.String()).
		Int("entities", len(cat.Entities())).
		Msg("timer stack ready")
	return a, nil
}

// NewSession builds an uncommitted session over the shared store.
func (a *App) NewSession() (*session.Session, error) {
	return session.New(session.Config{
		Catalog:          a.Catalog,
		Store:            a.Store,
		Parser:           a.Parser,
		Reconciler:       a.Reconciler,
		Location:         a.Location,
		DriftInterval:    a.Config.Drift.Interval,
		DriftTolerance:   a.Config.Drift.Tolerance,
		AccessDeniedHint: a.Config.Gateway.AccessDeniedHint,
	})
}

// Close releases the backend and the cache.
func (a *App) Close() error {
	var errs []error
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close backend: %w", err))
	}
	if a.Reconciler != nil {
		if err := a.Reconciler.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		}
	}
	return errors.Join(errs...)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	log.Info().Str("path", path).Msg("loaded catalog override")
	return cat, nil
}

func newParser(cfg config.Config, cat *catalog.Catalog) (command.Parser, error) {
	strict := command.NewStrictParser(cat)
	if cfg.Parser == config.ParserStrict {
		return strict, nil
	}

	ai, err := command.NewOpenAIParser(command.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
	}, cat)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI parser: %w", err)
	}
	if cfg.Parser == config.ParserOpenAI {
		return ai, nil
	}
	// The strict format is free and deterministic, so try it first.
	return command.Chain{strict, ai}, nil
}

func openBackend(ctx context.Context, cfg config.Config) (timers.Backend, error) {
	switch cfg.Backend {
	case config.BackendNATS:
		nc := natskv.DefaultConfig()
		nc.URL = cfg.NATS.URL
		nc.Bucket = cfg.NATS.Bucket
		nc.Replicas = cfg.NATS.Replicas
		b, err := natskv.New(ctx, nc)
		if err != nil {
			return nil, fmt.Errorf("failed to open NATS backend: %w", err)
		}
		return b, nil

	case config.BackendPostgres:
		pc := postgres.DefaultConfig()
		pc.DSN = cfg.Database.DSN()
		pc.NotifyChannel = cfg.Database.NotifyChannel
		b, err := postgres.New(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("failed to open Postgres backend: %w", err)
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("connected to database")
		return b, nil
	}

	log.Warn().Msg("using in-memory backend; timers are not shared between processes")
	return memory.New(), nil
}

func openCache(ctx context.Context, cfg config.CacheConfig) (reconcile.SnapshotCache, error) {
	switch cfg.Driver {
	case config.CacheBolt:
		c, err := boltcache.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt cache: %w", err)
		}
		return c, nil
	case config.CacheSQLite:
		c, err := sqlitecache.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
		}
		return c, nil
	}
	return nil, nil
}
