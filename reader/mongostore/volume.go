package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pairbot/config"
	"pairbot/models"
)

// VolumeSource streams the OHLCV collection by descending volume. Equal
// volumes are ordered by _id so repeated runs see the same ranking.
type VolumeSource struct {
	coll      *mongo.Collection
	batchSize int32
	timeout   time.Duration
}

func NewVolumeSource(coll *mongo.Collection, cfg config.MongoConfig) *VolumeSource {
	return &VolumeSource{
		coll:      coll,
		batchSize: cfg.CursorBatchSize,
		timeout:   cfg.QueryTimeout,
	}
}

func (s *VolumeSource) EachByVolume(ctx context.Context, fn func(models.VolumeRecord) bool) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "volume", Value: -1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.D{
			{Key: "_id", Value: 0},
			{Key: "pair_symbol", Value: 1},
			{Key: "pair_base", Value: 1},
			{Key: "volume", Value: 1},
		})
	if s.batchSize > 0 {
		opts.SetBatchSize(s.batchSize)
	}

	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return fmt.Errorf("find %s: %w", s.coll.Name(), err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var rec models.VolumeRecord
		if err := cur.Decode(&rec); err != nil {
			return fmt.Errorf("decode %s: %w", s.coll.Name(), err)
		}
		if !fn(rec) {
			return nil
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", s.coll.Name(), err)
	}
	return nil
}

func (s *VolumeSource) Count(ctx context.Context) (int64, error) {
	return countDocuments(ctx, s.coll, s.timeout)
}
