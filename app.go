package main

import (
	"context"
	"fmt"
	"time"

	"pairbot/config"
	"pairbot/internal/cache"
	"pairbot/internal/metrics"
	"pairbot/logger"
	"pairbot/processor"
	"pairbot/reader/mongostore"
	"pairbot/reader/pgstore"
	"pairbot/reader/s3parquet"
)

// app holds everything one command invocation needs.
type app struct {
	cfg     *config.Config
	cycle   *processor.Cycle
	volumes processor.VolumeSource
	posts   processor.PostSource
	metrics *metrics.Registry
	closers []func(context.Context) error

	// ran is set once a command starts using the app; only then are
	// metrics pushed.
	ran bool
}

type appFactory func(ctx context.Context, cfg *config.Config) (*app, error)

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.GetLogger()
	a := &app{cfg: cfg, metrics: metrics.New()}

	switch cfg.Store.Driver {
	case config.DriverMongo:
		store, err := mongostore.Connect(ctx, cfg.Store.Mongo)
		if err != nil {
			return nil, err
		}
		a.volumes = store.Volumes()
		a.posts = store.Posts()
		a.closers = append(a.closers, store.Close)
	case config.DriverPostgres:
		store, err := pgstore.Open(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		if cfg.Store.Postgres.Snapshot {
			if err := store.BeginSnapshot(ctx); err != nil {
				a.close(ctx)
				return nil, err
			}
		}
		a.volumes = store.Volumes()
		a.posts = store.Posts()
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	if cfg.Volume.Source == config.VolumeFromS3 {
		src, err := s3parquet.New(ctx, cfg.Volume.S3)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.volumes = src
	}

	var rankCache processor.RankCache
	if scope, ok := rankCacheScope(cfg); ok {
		c, client, err := cache.Dial(ctx, cfg.Cache.Redis, scope)
		if err != nil {
			log.WithComponent("main").WithError(err).Warn("rank cache unavailable; ranking from source")
		} else {
			rankCache = c
			a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		}
	}

	a.cycle = processor.NewCycle(
		cfg.Selection,
		processor.NewRanker(a.volumes, rankCache),
		processor.NewTracker(a.posts),
		a.metrics,
	)
	return a, nil
}

// rankCacheScope names the volume source for cache keys. It reports false
// when the cache is off, or when a Postgres snapshot is active and rankings
// must come from the snapshot itself.
func rankCacheScope(cfg *config.Config) (string, bool) {
	if !cfg.Cache.Redis.Enabled {
		return "", false
	}
	if cfg.Volume.Source == config.VolumeFromS3 {
		s3 := cfg.Volume.S3
		return fmt.Sprintf("s3:%s/%s", s3.Bucket, s3.Prefix), true
	}
	switch cfg.Store.Driver {
	case config.DriverMongo:
		m := cfg.Store.Mongo
		return fmt.Sprintf("mongo:%s.%s", m.Database, m.OHLCVCollection), true
	case config.DriverPostgres:
		if cfg.Store.Postgres.Snapshot {
			logger.GetLogger().WithComponent("main").Info("postgres snapshot active; rank cache skipped")
			return "", false
		}
		return "postgres:" + cfg.Store.Postgres.OHLCVTable, true
	}
	return "", false
}

// close releases connections in reverse order of acquisition and pushes
// the run's metrics if a command ran.
func (a *app) close(ctx context.Context) {
	log := logger.GetLogger()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if a.ran && a.cfg != nil && a.metrics != nil {
		gw := a.cfg.Metrics.Pushgateway
		if err := a.metrics.Push(ctx, gw.URL, gw.Job); err != nil {
			log.WithComponent("main").WithError(err).Warn("metrics push failed")
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.WithComponent("main").WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}
