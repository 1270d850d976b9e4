package trainer

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/artifact"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/model"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/observability"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/tracker"
)

// Callback hooks into the fit loop.
type Callback interface {
	OnFitStart(m model.Model) error
	OnEpochEnd(epoch int, metrics model.Metrics, m model.Model) error
}

// CheckpointCallback persists the model whenever the monitored metric
// improves, keeping only the single best file (SaveTopK is fixed at 1).
type CheckpointCallback struct {
	Policy  artifact.CheckpointPolicy
	Logger  *zap.Logger
	Metrics *observability.Metrics

	bestScore float64
	bestPath  string
	saved     bool
}

// OnFitStart implements Callback.
func (c *CheckpointCallback) OnFitStart(model.Model) error { return nil }

// OnEpochEnd saves when the monitored metric reached a new maximum. Epochs
// that did not produce the metric (train-loader-only mode) are skipped.
func (c *CheckpointCallback) OnEpochEnd(epoch int, metrics model.Metrics, m model.Model) error {
	score, ok := metrics[c.Policy.Monitor]
	if !ok {
		return nil
	}
	if c.saved && score <= c.bestScore {
		return nil
	}

	path := filepath.Join(c.Policy.Directory, c.Policy.Render(epoch, score))
	if err := m.Save(path); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if c.saved && c.bestPath != path {
		if err := os.Remove(c.bestPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune superseded checkpoint: %w", err)
		}
	}

	c.bestScore = score
	c.bestPath = path
	c.saved = true

	c.Metrics.RecordCheckpoint(c.Policy.Monitor, score)
	if c.Logger != nil {
		c.Logger.Info("checkpoint saved",
			zap.Int("epoch", epoch),
			zap.String("path", path),
			zap.Float64(c.Policy.Monitor, score))
	}
	return nil
}

// BestModelPath returns the path of the best checkpoint, empty before any save.
func (c *CheckpointCallback) BestModelPath() string { return c.bestPath }

// BestScore returns the best monitored value seen so far.
func (c *CheckpointCallback) BestScore() float64 { return c.bestScore }

// lrSchedule is implemented by models that expose their per-epoch learning
// rate for monitoring.
type lrSchedule interface {
	LearningRate(epoch int) float64
}

// LRMonitor logs the scheduled learning rate once per epoch to the session.
type LRMonitor struct {
	Session tracker.Session
}

// OnFitStart implements Callback.
func (l *LRMonitor) OnFitStart(model.Model) error { return nil }

// OnEpochEnd implements Callback.
func (l *LRMonitor) OnEpochEnd(epoch int, _ model.Metrics, m model.Model) error {
	sched, ok := m.(lrSchedule)
	if !ok || l.Session == nil {
		return nil
	}
	return l.Session.Log(map[string]any{"epoch": epoch, "lr": sched.LearningRate(epoch)})
}

// SummaryCallback logs the model size once at fit start.
type SummaryCallback struct {
	Logger *zap.Logger
}

// OnFitStart implements Callback.
func (s *SummaryCallback) OnFitStart(m model.Model) error {
	if s.Logger != nil {
		s.Logger.Info("model summary",
			zap.String("model", m.Name()),
			zap.Int("classes", m.NumClasses()),
			zap.Int("parameters", m.ParameterCount()))
	}
	return nil
}

// OnEpochEnd implements Callback.
func (s *SummaryCallback) OnEpochEnd(int, model.Metrics, model.Model) error { return nil }
