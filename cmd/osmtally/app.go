package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/cache"
	"github.com/NERVsystems/osmtally/pkg/config"
	"github.com/NERVsystems/osmtally/pkg/osm"
	"github.com/NERVsystems/osmtally/pkg/store"
	"github.com/NERVsystems/osmtally/pkg/tally"
	"github.com/NERVsystems/osmtally/pkg/workspace"
)

const redisPrefix = "osmtally:overpass:"

// app is the wired service: one workspace and the connections behind it.
type app struct {
	ws    *workspace.Workspace
	redis *redis.Client
	store *store.Store
	log   *slog.Logger
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{log: log}

	var responses cache.Cache = cache.NewMemory(cfg.CacheSize, cfg.CacheTTL)
	if rc := cache.OpenRedis(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB); rc != nil {
		a.redis = rc
		responses = cache.NewTiered(responses, cache.NewRedis(rc, redisPrefix, cfg.CacheTTL, log))
	}

	client := osm.NewClient(osm.Config{
		OverpassURL:   cfg.OverpassURL,
		NominatimURL:  cfg.NominatimURL,
		UserAgent:     cfg.UserAgent,
		OverpassRPS:   cfg.OverpassRPS,
		OverpassBurst: cfg.OverpassBurst,
	}, osm.WithCache(responses), osm.WithLogger(log))

	setOpts := []annotation.Option{annotation.WithLogger(log)}
	counterOpts := []tally.Option{
		tally.WithLogger(log),
		tally.WithConcurrency(cfg.TallyConcurrency),
	}
	if cfg.PostgresDSN != "" {
		st, err := store.Open(ctx, cfg.PostgresDSN, cfg.PostgresMaxOpen, cfg.PostgresMaxIdle, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = st
		if err := st.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		setOpts = append(setOpts, annotation.WithPersister(st))
		counterOpts = append(counterOpts, tally.WithResultStore(st))
	}

	shapes := annotation.NewSet(setOpts...)
	counter := tally.NewCounter(client, counterOpts...)
	if err := shapes.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := counter.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.ws = workspace.New(shapes, counter, client, cfg.Categories, log)
	return a, nil
}

// Close releases the database and redis connections.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing store", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("closing redis", "error", err)
		}
	}
}
