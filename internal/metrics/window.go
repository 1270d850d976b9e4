// Package metrics holds the run-time measurement helpers: a throughput window
// for epoch logging and the classification quality metrics the checkpoint
// policy monitors.
package metrics

import "time"

// Window accumulates per-batch timing across an epoch.
type Window struct {
	samples int
	fetch   time.Duration
	compute time.Duration
	batches int
	sumLoss float64
}

// Record adds one batch measurement.
func (w *Window) Record(batchSize int, fetchTime, computeTime time.Duration, loss float64) {
	w.samples += batchSize
	w.fetch += fetchTime
	w.compute += computeTime
	w.batches++
	w.sumLoss += loss
}

// Snapshot aggregates the window and resets it.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Samples: w.samples}
	total := w.fetch + w.compute
	if total > 0 {
		snap.ImagesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.batches > 0 {
		snap.AvgFetchMS = (w.fetch.Seconds() * 1000) / float64(w.batches)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.batches)
		snap.MeanLoss = w.sumLoss / float64(w.batches)
	}

	*w = Window{}
	return snap
}

// Snapshot is one epoch's aggregated throughput view.
type Snapshot struct {
	Samples      int
	ImagesPerSec float64
	AvgFetchMS   float64
	AvgComputeMS float64
	MeanLoss     float64
}
