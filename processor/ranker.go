package processor

import (
	"context"
	"fmt"

	"pairbot/internal/symbols"
	"pairbot/logger"
	"pairbot/models"
)

const initialRankCap = 128

// Ranker turns the volume collection into a deduplicated list of the
// highest-volume pairs.
type Ranker struct {
	source VolumeSource
	cache  RankCache
	log    *logger.Log
}

// NewRanker builds a ranker over source. cache may be nil.
func NewRanker(source VolumeSource, cache RankCache) *Ranker {
	return &Ranker{
		source: source,
		cache:  cache,
		log:    logger.GetLogger(),
	}
}

// TopPairs returns at most maxCount distinct pair identifiers in descending
// volume order. The first occurrence of a pair fixes its position, and the
// source is not read past the record that completes the list.
func (r *Ranker) TopPairs(ctx context.Context, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		return []string{}, nil
	}

	if r.cache != nil {
		if pairs, ok := r.cache.Get(ctx, maxCount); ok {
			r.log.WithComponent("ranker").WithFields(logger.Fields{
				"max_count": maxCount,
				"pairs":     len(pairs),
			}).Debug("ranked pairs served from cache")
			return pairs, nil
		}
	}

	seen := make(map[string]struct{}, min(maxCount, initialRankCap))
	ranked := make([]string, 0, min(maxCount, initialRankCap))
	scanned := 0

	err := r.source.EachByVolume(ctx, func(rec models.VolumeRecord) bool {
		scanned++
		id := symbols.PairID(rec.PairSymbol, rec.PairBase)
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ranked = append(ranked, id)
		}
		return len(ranked) < maxCount
	})
	if err != nil {
		return nil, fmt.Errorf("rank top pairs: %w", err)
	}

	r.log.WithComponent("ranker").WithFields(logger.Fields{
		"max_count": maxCount,
		"pairs":     len(ranked),
		"scanned":   scanned,
	}).Info("ranked top pairs by volume")

	if r.cache != nil {
		r.cache.Set(ctx, maxCount, ranked)
	}
	return ranked, nil
}
