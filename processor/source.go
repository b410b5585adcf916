package processor

import (
	"context"
	"time"

	"pairbot/models"
)

// VolumeSource yields OHLCV volume records. Ordering is the source's job.
type VolumeSource interface {
	// EachByVolume calls fn for every record in descending volume order,
	// ties in the source's natural order, until fn returns false.
	EachByVolume(ctx context.Context, fn func(models.VolumeRecord) bool) error
}

// PostSource yields the bot's post history.
type PostSource interface {
	// EachRecentPost calls fn for posts whose pair is one of pairs, most
	// recent first with a deterministic tie-break, until fn returns false.
	EachRecentPost(ctx context.Context, pairs []string, fn func(models.PostRecord) bool) error
	// LatestPost returns the most recent post. ok is false when there are no posts.
	LatestPost(ctx context.Context) (post models.PostRecord, ok bool, err error)
}

// Counter reports how many documents or rows a source holds.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// RankCache stores ranked pair lists keyed by the requested cap. Cache
// failures are the implementation's concern; a miss is reported as ok=false.
type RankCache interface {
	Get(ctx context.Context, maxCount int) (pairs []string, ok bool)
	Set(ctx context.Context, maxCount int, pairs []string)
}

// Recorder receives cycle telemetry.
type Recorder interface {
	StageDuration(stage string, d time.Duration)
	StageError(stage string)
	Ranked(n int)
	Selected(reason models.Reason)
}

type nopRecorder struct{}

func (nopRecorder) StageDuration(string, time.Duration) {}
func (nopRecorder) StageError(string)                   {}
func (nopRecorder) Ranked(int)                          {}
func (nopRecorder) Selected(models.Reason)              {}
