// Package trainer owns the fit/test loop. Epoch iteration, metric evaluation,
// and checkpointing live here; the orchestrator only decides what to run.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/data"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/model"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/observability"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/tracker"
)

// Options configure the engine. Precision and gradient clipping are fixed by
// the caller; the engine records them for provenance and logging.
type Options struct {
	Accelerator string
	Devices     int
	NumNodes    int
	MaxEpochs   int
	Precision   string
	GradClip    float64
	Strategy    string

	Logger    *zap.Logger
	Session   tracker.Session
	Metrics   *observability.Metrics
	Callbacks []Callback
}

// Engine runs the training and evaluation loops.
type Engine struct {
	opts       Options
	checkpoint *CheckpointCallback
}

// New builds an engine. The distributed strategy is resolved automatically:
// "ddp" whenever more than one device or node is configured, else "auto".
func New(opts Options) (*Engine, error) {
	if opts.MaxEpochs <= 0 {
		return nil, errors.New("trainer: max epochs must be > 0")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Strategy == "" {
		if opts.Devices > 1 || opts.NumNodes > 1 {
			opts.Strategy = "ddp"
		} else {
			opts.Strategy = "auto"
		}
	}

	e := &Engine{opts: opts}
	for _, cb := range opts.Callbacks {
		if c, ok := cb.(*CheckpointCallback); ok {
			e.checkpoint = c
		}
	}

	opts.Logger.Info("trainer configured",
		zap.String("accelerator", opts.Accelerator),
		zap.Int("devices", opts.Devices),
		zap.Int("nodes", opts.NumNodes),
		zap.String("strategy", opts.Strategy),
		zap.String("precision", opts.Precision),
		zap.Float64("grad_clip", opts.GradClip))
	return e, nil
}

// Fit trains for MaxEpochs. A nil val loader means training without
// validation; the caller decides whether that is legal.
func (e *Engine) Fit(ctx context.Context, m model.Model, train, val *data.Loader) error {
	if train == nil {
		return errors.New("trainer: training loader is required")
	}

	for _, cb := range e.opts.Callbacks {
		if err := cb.OnFitStart(m); err != nil {
			return fmt.Errorf("callback at fit start: %w", err)
		}
	}

	for epoch := 0; epoch < e.opts.MaxEpochs; epoch++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := time.Now()
		loss, err := m.TrainEpoch(ctx, epoch, train)
		if err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}

		epochMetrics := model.Metrics{"train_loss": loss}
		if val != nil {
			valMetrics, err := m.Evaluate(ctx, val, "val_")
			if err != nil {
				return fmt.Errorf("validate epoch %d: %w", epoch, err)
			}
			for k, v := range valMetrics {
				epochMetrics[k] = v
			}
		}

		e.opts.Metrics.RecordEpoch(time.Since(start), train.Len())

		record := map[string]any{"epoch": epoch}
		for k, v := range epochMetrics {
			record[k] = v
		}
		if e.opts.Session != nil {
			if err := e.opts.Session.Log(record); err != nil {
				return fmt.Errorf("log epoch %d: %w", epoch, err)
			}
		}

		e.opts.Logger.Info("epoch finished",
			zap.Int("epoch", epoch),
			zap.Float64("train_loss", loss),
			zap.Duration("took", time.Since(start)))

		for _, cb := range e.opts.Callbacks {
			if err := cb.OnEpochEnd(epoch, epochMetrics, m); err != nil {
				return fmt.Errorf("callback at epoch %d: %w", epoch, err)
			}
		}
	}

	return nil
}

// Test evaluates on the test loader. Selector "best" restores the checkpoint
// ranked best by the monitored metric before evaluating.
func (e *Engine) Test(ctx context.Context, m model.Model, loader *data.Loader, selector string) (model.Metrics, error) {
	if loader == nil {
		return nil, errors.New("trainer: test loader is required")
	}

	if selector == "best" {
		if e.checkpoint == nil || e.checkpoint.BestModelPath() == "" {
			return nil, errors.New("trainer: no best checkpoint available")
		}
		if err := m.Load(e.checkpoint.BestModelPath()); err != nil {
			return nil, fmt.Errorf("restore best checkpoint: %w", err)
		}
	}

	testMetrics, err := m.Evaluate(ctx, loader, "test_")
	if err != nil {
		return nil, fmt.Errorf("test evaluation: %w", err)
	}

	if e.opts.Session != nil {
		record := make(map[string]any, len(testMetrics))
		for k, v := range testMetrics {
			record[k] = v
		}
		if err := e.opts.Session.Log(record); err != nil {
			return nil, fmt.Errorf("log test metrics: %w", err)
		}
	}

	return testMetrics, nil
}

// BestCheckpointPath exposes the checkpoint file ranked best after fitting.
func (e *Engine) BestCheckpointPath() string {
	if e.checkpoint == nil {
		return ""
	}
	return e.checkpoint.BestModelPath()
}
