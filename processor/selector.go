package processor

import (
	"context"
	"errors"
	"fmt"

	"pairbot/logger"
	"pairbot/models"
)

// ErrNoCandidates is returned when there are no ranked pairs to choose from.
var ErrNoCandidates = errors.New("no candidate pairs")

// LatestLookup reports the most recently posted pair.
type LatestLookup interface {
	LatestPair(ctx context.Context) (string, error)
}

// Selector applies the posting policy: prefer a high-volume pair that was
// posted recently, never the very last post, else the top pair by volume.
type Selector struct {
	latest   LatestLookup
	failSoft bool
	log      *logger.Log
}

// NewSelector builds a selector. With failSoft set, a failed latest-post
// lookup is treated as "no latest post" instead of failing the selection.
func NewSelector(latest LatestLookup, failSoft bool) *Selector {
	return &Selector{latest: latest, failSoft: failSoft, log: logger.GetLogger()}
}

// Select picks the next pair to post from ranked and recent.
func (s *Selector) Select(ctx context.Context, ranked []string, recent models.PairSet) (models.Decision, error) {
	if len(ranked) == 0 {
		return models.Decision{Reason: models.ReasonNone}, ErrNoCandidates
	}

	if len(recent) == 0 {
		return models.Decision{Pair: ranked[0], Reason: models.ReasonHighestVolume}, nil
	}

	latest, err := s.latest.LatestPair(ctx)
	if err != nil {
		if !s.failSoft {
			return models.Decision{Reason: models.ReasonNone}, fmt.Errorf("select pair: %w", err)
		}
		s.log.WithComponent("selector").WithError(err).Warn("latest post lookup failed; selecting without it")
		latest = ""
	}

	for _, pair := range ranked {
		if recent.Has(pair) && pair != latest {
			return models.Decision{Pair: pair, Reason: models.ReasonRecentRotation, Latest: latest}, nil
		}
	}

	return models.Decision{Pair: ranked[0], Reason: models.ReasonFallback, Latest: latest}, nil
}
