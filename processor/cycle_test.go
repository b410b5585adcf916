package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairbot/config"
	"pairbot/models"
)

func selection(failSoft bool) config.SelectionConfig {
	return config.SelectionConfig{MaxRanked: 100, MaxRecent: 5, FailSoft: failSoft}
}

func newTestCycle(cfg config.SelectionConfig, vols *fakeVolumes, posts PostSource, rec Recorder) *Cycle {
	return NewCycle(cfg, NewRanker(vols, nil), NewTracker(posts), rec)
}

func TestCycleRotatesToRecentPair(t *testing.T) {
	vols := &fakeVolumes{records: []models.VolumeRecord{
		vol("BTC", "USD", 100),
		vol("ETH", "USD", 80),
		vol("SOL", "USD", 60),
	}}
	posts := &fakePosts{posts: []models.PostRecord{
		post("BTC-USD", 0),
		post("ETH-USD", 30),
	}}
	rec := newCountingRecorder()

	d, err := newTestCycle(selection(true), vols, posts, rec).Run(context.Background())
	require.NoError(t, err)

	_, parseErr := uuid.Parse(d.CycleID)
	assert.NoError(t, parseErr)
	assert.Equal(t, "ETH-USD", d.Pair)
	assert.Equal(t, "ETH", d.Symbol)
	assert.Equal(t, "USD", d.Base)
	assert.Equal(t, models.ReasonRecentRotation, d.Reason)
	assert.Equal(t, "BTC-USD", d.Latest)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD", "SOL-USD"}, d.Ranked)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, d.Recent)
	assert.Equal(t, 1, rec.selections[models.ReasonRecentRotation])
	assert.Equal(t, 3, rec.ranked)
	assert.Empty(t, rec.errors)
	for _, stage := range []string{StageRank, StageRecent, StageLatest, StageSelect} {
		assert.Equal(t, 1, rec.durations[stage], stage)
	}
}

func TestCycleNoHistory(t *testing.T) {
	vols := &fakeVolumes{records: []models.VolumeRecord{vol("BTC", "USD", 1)}}

	d, err := newTestCycle(selection(true), vols, &fakePosts{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", d.Pair)
	assert.Equal(t, models.ReasonHighestVolume, d.Reason)
}

func TestCycleNoCandidates(t *testing.T) {
	rec := newCountingRecorder()

	d, err := newTestCycle(selection(true), &fakeVolumes{}, &fakePosts{}, rec).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Empty())
	assert.Equal(t, models.ReasonNone, d.Reason)
	assert.NotEmpty(t, d.CycleID)
	assert.Equal(t, 1, rec.selections[models.ReasonNone])

	_, err = newTestCycle(selection(false), &fakeVolumes{}, &fakePosts{}, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestCycleRankFailureFailSoft(t *testing.T) {
	rec := newCountingRecorder()
	vols := &fakeVolumes{err: errors.New("ohlcv unavailable")}
	posts := &fakePosts{posts: []models.PostRecord{post("BTC-USD", 0)}}

	d, err := newTestCycle(selection(true), vols, posts, rec).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Empty())
	assert.Equal(t, 1, rec.errors[StageRank])
	assert.Zero(t, posts.recentCalls)
}

func TestCycleRankFailureStrict(t *testing.T) {
	boom := errors.New("ohlcv unavailable")
	rec := newCountingRecorder()

	d, err := newTestCycle(selection(false), &fakeVolumes{err: boom}, &fakePosts{}, rec).Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.True(t, d.Empty())
	assert.Equal(t, 1, rec.errors[StageRank])
}

func TestCycleRecentFailureFailSoft(t *testing.T) {
	vols := &fakeVolumes{records: []models.VolumeRecord{vol("BTC", "USD", 2), vol("ETH", "USD", 1)}}
	posts := &fakePosts{recentErr: errors.New("posts unavailable")}
	rec := newCountingRecorder()

	d, err := newTestCycle(selection(true), vols, posts, rec).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", d.Pair)
	assert.Equal(t, models.ReasonHighestVolume, d.Reason)
	assert.Equal(t, 1, rec.errors[StageRecent])
}

func TestCycleLatestFailure(t *testing.T) {
	vols := &fakeVolumes{records: []models.VolumeRecord{vol("BTC", "USD", 2), vol("ETH", "USD", 1)}}
	boom := errors.New("posts unavailable")

	rec := newCountingRecorder()
	posts := &fakePosts{posts: []models.PostRecord{post("BTC-USD", 0)}, latestErr: boom}
	d, err := newTestCycle(selection(true), vols, posts, rec).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", d.Pair, "unknown latest means the recent pair stays eligible")
	assert.Equal(t, models.ReasonRecentRotation, d.Reason)
	assert.Equal(t, 1, rec.errors[StageLatest])

	rec = newCountingRecorder()
	_, err = newTestCycle(selection(false), vols, posts, rec).Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec.errors[StageLatest])
	assert.Equal(t, 1, rec.errors[StageSelect])
}

func TestCycleFallback(t *testing.T) {
	vols := &fakeVolumes{records: []models.VolumeRecord{vol("A", "X", 3), vol("B", "X", 2), vol("C", "X", 1)}}
	posts := &fakePosts{posts: []models.PostRecord{post("A-X", 0)}}

	d, err := newTestCycle(selection(true), vols, posts, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A-X", d.Pair)
	assert.Equal(t, models.ReasonFallback, d.Reason)
}

func TestCycleCanceledContextSurfaces(t *testing.T) {
	vols := &fakeVolumes{err: context.Canceled}

	_, err := newTestCycle(selection(true), vols, &fakePosts{}, nil).Run(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCycleIDsAreUnique(t *testing.T) {
	c := newTestCycle(selection(true), &fakeVolumes{}, &fakePosts{}, nil)
	first, _ := c.Run(context.Background())
	second, _ := c.Run(context.Background())
	assert.NotEqual(t, first.CycleID, second.CycleID)
}

func TestRepeatedCallsAgreeOnTies(t *testing.T) {
	vols := &fakeVolumes{records: []models.VolumeRecord{
		vol("BTC", "USD", 100),
		vol("ETH", "USD", 100),
		vol("SOL", "USD", 50),
		vol("ADA", "USD", 50),
	}}
	posts := &fakePosts{posts: []models.PostRecord{
		post("SOL-USD", 10),
		post("ETH-USD", 10),
		post("BTC-USD", 10),
	}}
	cfg := config.SelectionConfig{MaxRanked: 100, MaxRecent: 2, FailSoft: true}
	ctx := context.Background()

	ranker := NewRanker(vols, nil)
	firstRanked, err := ranker.TopPairs(ctx, 100)
	require.NoError(t, err)
	secondRanked, err := ranker.TopPairs(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD", "SOL-USD", "ADA-USD"}, firstRanked)
	assert.Equal(t, firstRanked, secondRanked)

	tracker := NewTracker(posts)
	firstRecent, err := tracker.RecentPairs(ctx, firstRanked, 2)
	require.NoError(t, err)
	secondRecent, err := tracker.RecentPairs(ctx, firstRanked, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, firstRecent.Sorted())
	assert.Equal(t, firstRecent, secondRecent)

	firstLatest, err := tracker.LatestPair(ctx)
	require.NoError(t, err)
	secondLatest, err := tracker.LatestPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", firstLatest)
	assert.Equal(t, firstLatest, secondLatest)

	c := newTestCycle(cfg, vols, posts, nil)
	first, err := c.Run(ctx)
	require.NoError(t, err)
	second, err := c.Run(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.CycleID, second.CycleID)
	first.CycleID, second.CycleID = "", ""
	assert.Equal(t, first, second)
	assert.Equal(t, "ETH-USD", first.Pair)
	assert.Equal(t, models.ReasonRecentRotation, first.Reason)
}

func TestRepeatedRunsAgreeWithCache(t *testing.T) {
	vols := &fakeVolumes{records: []models.VolumeRecord{
		vol("ETH", "USD", 7),
		vol("BTC", "USD", 7),
	}}
	posts := &fakePosts{posts: []models.PostRecord{post("ETH-USD", 0)}}
	cache := &memCache{}
	c := NewCycle(selection(true), NewRanker(vols, cache), NewTracker(posts), nil)

	first, err := c.Run(context.Background())
	require.NoError(t, err)
	second, err := c.Run(context.Background())
	require.NoError(t, err)
	first.CycleID, second.CycleID = "", ""
	assert.Equal(t, first, second)
	assert.Equal(t, "ETH-USD", first.Pair)
	assert.Equal(t, models.ReasonFallback, first.Reason)
	assert.Equal(t, 1, cache.sets)
}
