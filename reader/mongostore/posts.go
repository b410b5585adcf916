package mongostore

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pairbot/config"
	"pairbot/models"
)

// recencyOrder sorts newest first; pair breaks ties between equal times.
var recencyOrder = bson.D{{Key: "time", Value: -1}, {Key: "pair", Value: 1}}

var postProjection = bson.D{
	{Key: "_id", Value: 0},
	{Key: "pair", Value: 1},
	{Key: "time", Value: 1},
}

// postDoc keeps time raw; some collections store epoch seconds, not dates.
type postDoc struct {
	Pair string        `bson:"pair"`
	Time bson.RawValue `bson:"time"`
}

func (d postDoc) record() models.PostRecord {
	return models.PostRecord{Pair: d.Pair, Time: postTime(d.Time)}
}

// postTime converts BSON dates and epoch seconds (int or float). Anything
// else yields the zero time.
func postTime(v bson.RawValue) time.Time {
	if dt, ok := v.DateTimeOK(); ok {
		return time.UnixMilli(dt).UTC()
	}
	if f, ok := v.DoubleOK(); ok {
		sec := math.Floor(f)
		return time.Unix(int64(sec), int64((f-sec)*1e9)).UTC()
	}
	if n, ok := v.Int64OK(); ok {
		return time.Unix(n, 0).UTC()
	}
	if n, ok := v.Int32OK(); ok {
		return time.Unix(int64(n), 0).UTC()
	}
	return time.Time{}
}

type PostSource struct {
	coll      *mongo.Collection
	batchSize int32
	timeout   time.Duration
}

func NewPostSource(coll *mongo.Collection, cfg config.MongoConfig) *PostSource {
	return &PostSource{
		coll:      coll,
		batchSize: cfg.CursorBatchSize,
		timeout:   cfg.QueryTimeout,
	}
}

func (s *PostSource) EachRecentPost(ctx context.Context, pairs []string, fn func(models.PostRecord) bool) error {
	if len(pairs) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetSort(recencyOrder).SetProjection(postProjection)
	if s.batchSize > 0 {
		opts.SetBatchSize(s.batchSize)
	}

	filter := bson.D{{Key: "pair", Value: bson.D{{Key: "$in", Value: pairs}}}}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("find %s: %w", s.coll.Name(), err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc postDoc
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("decode %s: %w", s.coll.Name(), err)
		}
		if !fn(doc.record()) {
			return nil
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", s.coll.Name(), err)
	}
	return nil
}

func (s *PostSource) LatestPost(ctx context.Context) (models.PostRecord, bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.FindOne().SetSort(recencyOrder).SetProjection(postProjection)

	var doc postDoc
	err := s.coll.FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if isNoDocuments(err) {
		return models.PostRecord{}, false, nil
	}
	if err != nil {
		return models.PostRecord{}, false, fmt.Errorf("find latest in %s: %w", s.coll.Name(), err)
	}
	return doc.record(), true, nil
}

func (s *PostSource) Count(ctx context.Context) (int64, error) {
	return countDocuments(ctx, s.coll, s.timeout)
}
