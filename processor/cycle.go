package processor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"pairbot/config"
	"pairbot/internal/symbols"
	"pairbot/logger"
	"pairbot/models"
)

const (
	StageRank   = "rank"
	StageRecent = "recent"
	StageLatest = "latest"
	StageSelect = "select"
)

// Cycle runs one selection: rank, collect recent posts, pick a pair.
// With fail-soft enabled a failed store read is logged and replaced with an
// empty result for that stage.
type Cycle struct {
	cfg      config.SelectionConfig
	ranker   *Ranker
	tracker  *Tracker
	selector *Selector
	recorder Recorder
	log      *logger.Log
}

// NewCycle wires a cycle. recorder may be nil.
func NewCycle(cfg config.SelectionConfig, ranker *Ranker, tracker *Tracker, recorder Recorder) *Cycle {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	c := &Cycle{
		cfg:      cfg,
		ranker:   ranker,
		tracker:  tracker,
		recorder: recorder,
		log:      logger.GetLogger(),
	}
	// Latest-post lookups go through the cycle so they are timed and
	// counted like every other stage.
	c.selector = NewSelector(c, cfg.FailSoft)
	return c
}

// RankedPairs returns the volume ranking, or an empty list when the read
// fails under fail-soft.
func (c *Cycle) RankedPairs(ctx context.Context) ([]string, error) {
	var ranked []string
	err := c.stage(ctx, StageRank, func(ctx context.Context) error {
		var err error
		ranked, err = c.ranker.TopPairs(ctx, c.cfg.MaxRanked)
		return err
	})
	if ranked == nil {
		ranked = []string{}
	}
	c.recorder.Ranked(len(ranked))
	return ranked, err
}

// RecentPairs returns the recently posted subset of candidates, or an empty
// set when the read fails under fail-soft.
func (c *Cycle) RecentPairs(ctx context.Context, candidates []string) (models.PairSet, error) {
	recent := models.PairSet{}
	err := c.stage(ctx, StageRecent, func(ctx context.Context) error {
		got, err := c.tracker.RecentPairs(ctx, candidates, c.cfg.MaxRecent)
		if err == nil {
			recent = got
		}
		return err
	})
	return recent, err
}

// LatestPair returns the last posted pair, or "" when there is none or the
// read fails under fail-soft.
func (c *Cycle) LatestPair(ctx context.Context) (string, error) {
	var latest string
	err := c.stage(ctx, StageLatest, func(ctx context.Context) error {
		var err error
		latest, err = c.tracker.LatestPair(ctx)
		return err
	})
	return latest, err
}

// Run executes a full cycle. The returned decision always carries the cycle
// ID; an empty Pair means there is nothing to post. ErrNoCandidates is only
// returned when fail-soft is disabled.
func (c *Cycle) Run(ctx context.Context) (models.Decision, error) {
	cycleID := uuid.NewString()
	log := c.log.WithFields(logger.Fields{"cycle_id": cycleID})
	start := time.Now()

	decision := models.Decision{CycleID: cycleID, Reason: models.ReasonNone}

	ranked, err := c.RankedPairs(ctx)
	if err != nil {
		return decision, err
	}
	decision.Ranked = ranked

	if len(ranked) == 0 {
		c.recorder.Selected(models.ReasonNone)
		if !c.cfg.FailSoft {
			return decision, ErrNoCandidates
		}
		log.WithComponent("cycle").Warn("no candidate pairs; nothing to post this cycle")
		return decision, nil
	}

	recent, err := c.RecentPairs(ctx, ranked)
	if err != nil {
		return decision, err
	}
	decision.Recent = recent.Sorted()

	var picked models.Decision
	err = c.stage(ctx, StageSelect, func(ctx context.Context) error {
		var err error
		picked, err = c.selector.Select(ctx, ranked, recent)
		return err
	})
	if err != nil {
		return decision, err
	}

	decision.Pair = picked.Pair
	decision.Symbol, decision.Base, _ = symbols.SplitPairID(picked.Pair)
	decision.Reason = picked.Reason
	decision.Latest = picked.Latest
	c.recorder.Selected(decision.Reason)

	log.WithComponent("cycle").WithFields(logger.Fields{
		"pair":   decision.Pair,
		"reason": decision.Reason,
		"latest": decision.Latest,
		"ranked": len(ranked),
		"recent": decision.Recent,
	}).Info("pair selected")
	logger.LogPerformanceEntry(log, "cycle", "run", time.Since(start), nil)

	return decision, nil
}

func (c *Cycle) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	c.recorder.StageDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	c.recorder.StageError(name)
	entry := c.log.WithComponent("cycle").WithFields(logger.Fields{"stage": name}).WithError(err)
	if !c.cfg.FailSoft || errors.Is(err, context.Canceled) {
		entry.Error("stage failed")
		return err
	}
	entry.Warn("stage failed; continuing with an empty result")
	return nil
}
