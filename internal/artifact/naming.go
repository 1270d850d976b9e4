// Package artifact derives the checkpoint directory and filename scheme from
// run identity. Sweep member runs share one directory keyed by sweep id;
// standalone runs get a timestamped directory of their own.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Timestamp layout used in standalone run directory names.
const TimestampLayout = "20060102_150405"

// RunIdentity describes the tracked run a checkpoint belongs to. Created once
// at session start and immutable afterwards.
type RunIdentity struct {
	RunName   string
	SweepID   string
	Timestamp string
}

// CheckpointPolicy tells the training engine where and when to persist model
// snapshots. Exactly one checkpoint is retained: the one with the highest
// value of the monitored metric.
type CheckpointPolicy struct {
	Directory        string
	FilenameTemplate string
	Monitor          string
	Mode             string
	SaveTopK         int
}

// Derive computes the CheckpointPolicy for a run and creates its directory.
// Directory creation is idempotent.
func Derive(id RunIdentity, checkpointRoot, metric string) (CheckpointPolicy, error) {
	var dir, tmpl string
	if id.SweepID != "" {
		dir = filepath.Join(checkpointRoot, "sweep-"+id.SweepID)
		tmpl = fmt.Sprintf("%s_epoch{epoch}_%s{value}", id.RunName, metric)
	} else {
		dir = filepath.Join(checkpointRoot, fmt.Sprintf("run-%s-%s", id.Timestamp, id.RunName))
		tmpl = fmt.Sprintf("best_epoch{epoch}_%s{value}", metric)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckpointPolicy{}, fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}

	return CheckpointPolicy{
		Directory:        dir,
		FilenameTemplate: tmpl,
		Monitor:          metric,
		Mode:             "max",
		SaveTopK:         1,
	}, nil
}

// Render expands the {epoch} and {value} placeholders into a concrete
// checkpoint filename.
func (p CheckpointPolicy) Render(epoch int, value float64) string {
	name := strings.ReplaceAll(p.FilenameTemplate, "{epoch}", fmt.Sprintf("%02d", epoch))
	name = strings.ReplaceAll(name, "{value}", fmt.Sprintf("%.2f", value))
	return name + ".ckpt"
}
