package processor

import (
	"context"
	"sort"
	"sync"
	"time"

	"pairbot/models"
)

// fakeVolumes streams records in descending volume order, keeping the
// insertion order for ties, like the store backends do.
type fakeVolumes struct {
	records []models.VolumeRecord
	err     error
	visited int
}

func (f *fakeVolumes) EachByVolume(_ context.Context, fn func(models.VolumeRecord) bool) error {
	if f.err != nil {
		return f.err
	}
	sorted := append([]models.VolumeRecord(nil), f.records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Volume > sorted[j].Volume })
	for _, rec := range sorted {
		f.visited++
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

type fakePosts struct {
	posts     []models.PostRecord
	recentErr error
	latestErr error

	recentCalls int
	lastFilter  []string
}

func (f *fakePosts) sorted() []models.PostRecord {
	out := append([]models.PostRecord(nil), f.posts...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.After(out[j].Time)
		}
		return out[i].Pair < out[j].Pair
	})
	return out
}

func (f *fakePosts) EachRecentPost(_ context.Context, pairs []string, fn func(models.PostRecord) bool) error {
	f.recentCalls++
	f.lastFilter = pairs
	if f.recentErr != nil {
		return f.recentErr
	}
	allowed := models.NewPairSet(pairs...)
	for _, p := range f.sorted() {
		if !allowed.Has(p.Pair) {
			continue
		}
		if !fn(p) {
			return nil
		}
	}
	return nil
}

func (f *fakePosts) LatestPost(context.Context) (models.PostRecord, bool, error) {
	if f.latestErr != nil {
		return models.PostRecord{}, false, f.latestErr
	}
	posts := f.sorted()
	if len(posts) == 0 {
		return models.PostRecord{}, false, nil
	}
	return posts[0], true, nil
}

type staticLatest struct {
	pair string
	err  error
}

func (s staticLatest) LatestPair(context.Context) (string, error) {
	return s.pair, s.err
}

type memCache struct {
	entries map[int][]string
	sets    int
}

func (m *memCache) Get(_ context.Context, n int) ([]string, bool) {
	pairs, ok := m.entries[n]
	return pairs, ok
}

func (m *memCache) Set(_ context.Context, n int, pairs []string) {
	if m.entries == nil {
		m.entries = map[int][]string{}
	}
	m.entries[n] = pairs
	m.sets++
}

type countingRecorder struct {
	mu         sync.Mutex
	errors     map[string]int
	durations  map[string]int
	selections map[models.Reason]int
	ranked     int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		errors:     map[string]int{},
		durations:  map[string]int{},
		selections: map[models.Reason]int{},
	}
}

func (r *countingRecorder) StageDuration(stage string, _ time.Duration) {
	r.mu.Lock()
	r.durations[stage]++
	r.mu.Unlock()
}

func (r *countingRecorder) StageError(stage string) {
	r.mu.Lock()
	r.errors[stage]++
	r.mu.Unlock()
}

func (r *countingRecorder) Ranked(n int) {
	r.mu.Lock()
	r.ranked = n
	r.mu.Unlock()
}

func (r *countingRecorder) Selected(reason models.Reason) {
	r.mu.Lock()
	r.selections[reason]++
	r.mu.Unlock()
}

func vol(symbol, base string, v float64) models.VolumeRecord {
	return models.VolumeRecord{PairSymbol: symbol, PairBase: base, Volume: v}
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func post(pair string, minutesAgo int) models.PostRecord {
	return models.PostRecord{Pair: pair, Time: baseTime.Add(-time.Duration(minutesAgo) * time.Minute)}
}
