// Registers, on a private registry:
//
//	#pairbot_stage_errors_total{stage}
//	#pairbot_stage_duration_seconds{stage}
//	#pairbot_selections_total{reason}
//	#pairbot_ranked_pairs
//
// A one-shot process has no scrape window, so the registry is pushed to a
// Pushgateway at the end of the run when one is configured.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"pairbot/logger"
	"pairbot/models"
)

const component = "pairbot_metrics"

// Registry records cycle telemetry. It satisfies processor.Recorder.
type Registry struct {
	reg           *prometheus.Registry
	stageErrors   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	selections    *prometheus.CounterVec
	ranked        prometheus.Gauge
	log           *logger.Log
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		stageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairbot_stage_errors_total",
				Help: "Number of failed store reads per cycle stage",
			},
			[]string{"stage"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pairbot_stage_duration_seconds",
				Help:    "Wall time spent in each cycle stage",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"stage"},
		),
		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairbot_selections_total",
				Help: "Number of selection decisions by reason",
			},
			[]string{"reason"},
		),
		ranked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pairbot_ranked_pairs",
			Help: "Size of the ranked candidate list in the last cycle",
		}),
		log: logger.GetLogger(),
	}
	r.reg.MustRegister(r.stageErrors, r.stageDuration, r.selections, r.ranked)
	return r
}

func (r *Registry) StageDuration(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Registry) StageError(stage string) {
	r.stageErrors.WithLabelValues(stage).Inc()
	EmitMetric(r.log, "cycle", "stage_error", 1, "counter", logger.Fields{"stage": stage})
}

func (r *Registry) Ranked(n int) {
	r.ranked.Set(float64(n))
}

func (r *Registry) Selected(reason models.Reason) {
	r.selections.WithLabelValues(string(reason)).Inc()
	EmitMetric(r.log, "selector", "pair_selected", 1, "counter", logger.Fields{"reason": string(reason)})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Push sends every collected metric to the Pushgateway at url, replacing
// the previous push for job.
func (r *Registry) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	r.log.WithComponent(component).WithFields(logger.Fields{
		"url": url,
		"job": job,
	}).Debug("metrics pushed")
	return nil
}
