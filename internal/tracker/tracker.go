// Package tracker provides the experiment-tracking session: run identity,
// recorded configuration, metric logging, and versioned artifacts. Two
// backends exist: an offline store writing under a local runs directory, and
// a remote HTTP service.
package tracker

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// SweepIDEnv carries the sweep identifier a sweep agent assigns to its runs.
const SweepIDEnv = "LESIONTRAIN_SWEEP_ID"

// Artifact is a named, typed file registered with the session.
type Artifact struct {
	Name string
	Type string
	Path string
}

// Session is one tracked run. Implementations are not safe for concurrent
// use; the orchestrator is single-threaded by design.
type Session interface {
	// RunName is the generated or assigned display name.
	RunName() string
	// SweepID is empty for standalone runs.
	SweepID() string
	// AssignedConfig returns sweep-assigned option values, if any. The caller
	// folds them into its own config snapshot; the session never mutates
	// caller state.
	AssignedConfig() map[string]any
	// UpdateConfig records values into the session's copy of the run config.
	UpdateConfig(values map[string]any) error
	// Log appends one metrics/event record.
	Log(values map[string]any) error
	// LogArtifact registers a versioned artifact file.
	LogArtifact(a Artifact) error
	// UseArtifact resolves an artifact reference ("name:version") to a local
	// path.
	UseArtifact(ref string) (string, error)
	// Finish closes the session. No calls are valid afterwards.
	Finish() error
}

// Options configure session initialization.
type Options struct {
	Entity  string
	Project string
	Config  map[string]any

	// BaseURL selects the remote backend when non-empty.
	BaseURL string
	// Dir is the offline store root (default "runs").
	Dir string

	Logger *zap.Logger
}

// Init opens a session against the configured backend.
func Init(ctx context.Context, opts Options) (Session, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	sweepID := os.Getenv(SweepIDEnv)

	if opts.BaseURL != "" {
		s, err := initRemote(ctx, opts, sweepID)
		if err != nil {
			return nil, fmt.Errorf("init tracker session: %w", err)
		}
		return s, nil
	}

	s, err := initOffline(opts, sweepID)
	if err != nil {
		return nil, fmt.Errorf("init offline tracker session: %w", err)
	}
	return s, nil
}
