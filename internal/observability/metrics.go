// Package observability bundles the Prometheus collectors for training runs
// and the optional HTTP endpoint that exposes them while a run is live.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the training-run collectors over a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	RunsTotal       *prometheus.CounterVec
	EpochDuration   prometheus.Histogram
	SamplesSeen     prometheus.Counter
	CheckpointSaves prometheus.Counter
	BestScore       *prometheus.GaugeVec
}

// NewMetrics constructs the registry with all run collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesiontrain_runs_total",
		Help: "Training runs by outcome",
	}, []string{"outcome"})

	epochs := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lesiontrain_epoch_duration_seconds",
		Help:    "Wall-clock duration of one training epoch",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	samples := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lesiontrain_samples_total",
		Help: "Samples consumed across all epochs",
	})

	saves := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lesiontrain_checkpoint_saves_total",
		Help: "Checkpoint files written by the best-metric policy",
	})

	best := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lesiontrain_best_score",
		Help: "Best value of the monitored metric so far",
	}, []string{"metric"})

	reg.MustRegister(runs, epochs, samples, saves, best)

	return &Metrics{
		registry:        reg,
		RunsTotal:       runs,
		EpochDuration:   epochs,
		SamplesSeen:     samples,
		CheckpointSaves: saves,
		BestScore:       best,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun records a run outcome ("completed" / "failed").
func (m *Metrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordEpoch records one epoch's duration and sample count.
func (m *Metrics) RecordEpoch(duration time.Duration, samples int) {
	if m == nil {
		return
	}
	m.EpochDuration.Observe(duration.Seconds())
	m.SamplesSeen.Add(float64(samples))
}

// RecordCheckpoint records a checkpoint save and the new best score.
func (m *Metrics) RecordCheckpoint(metric string, score float64) {
	if m == nil {
		return
	}
	m.CheckpointSaves.Inc()
	m.BestScore.WithLabelValues(metric).Set(score)
}
