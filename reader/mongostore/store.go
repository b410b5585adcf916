// Package mongostore reads OHLCV volume records and the bot's post history
// from MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"pairbot/config"
	"pairbot/logger"
)

// Store owns the client connection for one run.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    config.MongoConfig
	log    *logger.Log
}

// Connect dials the cluster and pings the primary before returning.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	log := logger.GetLogger()

	dialCtx, cancel := withTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.MongoURI()).
		SetAppName("pairbot")
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout).SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	log.WithComponent("mongostore").WithFields(logger.Fields{
		"database":    cfg.Database,
		"ohlcv":       cfg.OHLCVCollection,
		"posts":       cfg.PostsCollection,
		"batch_size":  cfg.CursorBatchSize,
		"timeout_sec": cfg.QueryTimeout.Seconds(),
	}).Info("connected to mongo")

	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		cfg:    cfg,
		log:    log,
	}, nil
}

func (s *Store) Volumes() *VolumeSource {
	return NewVolumeSource(s.db.Collection(s.cfg.OHLCVCollection), s.cfg)
}

func (s *Store) Posts() *PostSource {
	return NewPostSource(s.db.Collection(s.cfg.PostsCollection), s.cfg)
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func countDocuments(ctx context.Context, coll *mongo.Collection, timeout time.Duration) (int64, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	n, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", coll.Name(), err)
	}
	return n, nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
