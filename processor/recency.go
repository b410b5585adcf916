package processor

import (
	"context"
	"fmt"

	"pairbot/logger"
	"pairbot/models"
)

// Tracker answers questions about the bot's post history.
type Tracker struct {
	source PostSource
	log    *logger.Log
}

// NewTracker builds a tracker over the post history source.
func NewTracker(source PostSource) *Tracker {
	return &Tracker{source: source, log: logger.GetLogger()}
}

// RecentPairs returns up to maxCount distinct pairs drawn from candidates,
// taking the most recently posted ones. Deduplication happens here, over
// the source's time-ordered stream, rather than with a store-side distinct
// whose ordering is not guaranteed.
func (t *Tracker) RecentPairs(ctx context.Context, candidates []string, maxCount int) (models.PairSet, error) {
	recent := models.PairSet{}
	if maxCount <= 0 || len(candidates) == 0 {
		return recent, nil
	}

	allowed := models.NewPairSet(candidates...)
	err := t.source.EachRecentPost(ctx, allowed.Sorted(), func(post models.PostRecord) bool {
		if allowed.Has(post.Pair) {
			recent.Add(post.Pair)
		}
		return len(recent) < maxCount
	})
	if err != nil {
		return models.PairSet{}, fmt.Errorf("recent posted pairs: %w", err)
	}

	t.log.WithComponent("tracker").WithFields(logger.Fields{
		"candidates": len(allowed),
		"max_count":  maxCount,
		"recent":     recent.Sorted(),
	}).Info("collected recently posted pairs")
	return recent, nil
}

// LatestPair returns the pair of the single most recent post, or "" when
// nothing has been posted yet.
func (t *Tracker) LatestPair(ctx context.Context) (string, error) {
	post, ok, err := t.source.LatestPost(ctx)
	if err != nil {
		return "", fmt.Errorf("latest posted pair: %w", err)
	}
	if !ok {
		return "", nil
	}
	return post.Pair, nil
}
