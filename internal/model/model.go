// Package model defines the classifier contract the training engine drives
// and the concrete backbones the selector can construct.
package model

import (
	"context"
	"fmt"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/data"
)

// FineTuneMode selects which parameter group receives gradient updates.
type FineTuneMode string

const (
	FineTuneHead     FineTuneMode = "head"
	FineTuneBackbone FineTuneMode = "backbone"
	FineTuneFull     FineTuneMode = "full"
)

// ParseFineTuneMode validates a mode string from configuration.
func ParseFineTuneMode(s string) (FineTuneMode, error) {
	switch FineTuneMode(s) {
	case FineTuneHead, FineTuneBackbone, FineTuneFull:
		return FineTuneMode(s), nil
	default:
		return "", fmt.Errorf("unknown ft_mode %q", s)
	}
}

// Metrics is a named-scalar bag produced by evaluation.
type Metrics map[string]float64

// Model is the training contract: one epoch of fitting, one evaluation pass,
// and snapshot persistence for checkpointing.
type Model interface {
	Name() string
	NumClasses() int
	ParameterCount() int
	TrainEpoch(ctx context.Context, epoch int, loader *data.Loader) (float64, error)
	Evaluate(ctx context.Context, loader *data.Loader, prefix string) (Metrics, error)
	Save(path string) error
	Load(path string) error
}

// Params carries everything a constructor needs from the resolved config.
type Params struct {
	Arch           string
	ClassToIndex   map[string]int
	CheckpointPath string // optional pretrained snapshot

	FTMode       FineTuneMode
	Optimizer    string
	Scheduler    string
	LR           float64
	WeightDecay  float64
	EtaMin       float64
	LambdaFactor float64
	GradClip     float64
	MaxEpochs    int
	Seed         int64
}

// Constructor builds a model from resolved parameters.
type Constructor func(Params) (Model, error)
