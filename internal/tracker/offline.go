package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// offlineSession stores everything under <dir>/<run-name>/: config.json, an
// append-only events.jsonl, and versioned copies of artifacts.
type offlineSession struct {
	runID    string
	runName  string
	sweepID  string
	dir      string
	config   map[string]any
	events   *os.File
	logger   *zap.Logger
	finished bool
}

func initOffline(opts Options, sweepID string) (*offlineSession, error) {
	root := opts.Dir
	if root == "" {
		root = "runs"
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	runName := generateRunName(rng)

	dir := filepath.Join(root, runName)
	if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	s := &offlineSession{
		runID:   uuid.NewString(),
		runName: runName,
		sweepID: sweepID,
		dir:     dir,
		config:  map[string]any{},
		logger:  opts.Logger,
	}
	for k, v := range opts.Config {
		s.config[k] = v
	}
	s.config["entity"] = opts.Entity
	s.config["project"] = opts.Project

	if err := s.writeConfig(); err != nil {
		return nil, err
	}

	events, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	s.events = events

	s.logger.Info("offline tracker session started",
		zap.String("run", runName), zap.String("dir", dir))
	return s, nil
}

func (s *offlineSession) RunName() string { return s.runName }
func (s *offlineSession) SweepID() string { return s.sweepID }

// AssignedConfig is always empty offline: there is no remote sweep controller
// to assign values.
func (s *offlineSession) AssignedConfig() map[string]any { return nil }

func (s *offlineSession) UpdateConfig(values map[string]any) error {
	if s.finished {
		return errors.New("session finished")
	}
	for k, v := range values {
		s.config[k] = v
	}
	return s.writeConfig()
}

func (s *offlineSession) Log(values map[string]any) error {
	if s.finished {
		return errors.New("session finished")
	}
	record := map[string]any{"ts": time.Now().UTC().Format(time.RFC3339Nano)}
	for k, v := range values {
		record[k] = v
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := s.events.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *offlineSession) LogArtifact(a Artifact) error {
	if s.finished {
		return errors.New("session finished")
	}

	version := 0
	var dst string
	for {
		dst = filepath.Join(s.dir, "artifacts", fmt.Sprintf("%s-v%d%s", a.Name, version, filepath.Ext(a.Path)))
		if _, err := os.Stat(dst); errors.Is(err, os.ErrNotExist) {
			break
		}
		version++
	}

	if err := copyFile(a.Path, dst); err != nil {
		return fmt.Errorf("store artifact %s: %w", a.Name, err)
	}

	s.logger.Info("artifact logged",
		zap.String("name", a.Name), zap.String("type", a.Type), zap.Int("version", version))
	return s.Log(map[string]any{"artifact": a.Name, "artifact_type": a.Type, "artifact_version": version})
}

// UseArtifact resolves "name" or "name:latest" against the stored versions
// and returns the newest matching file.
func (s *offlineSession) UseArtifact(ref string) (string, error) {
	name := ref
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		name = ref[:i]
	}

	pattern := filepath.Join(s.dir, "artifacts", name+"-v*")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("artifact %q not found in offline store", ref)
	}
	return matches[len(matches)-1], nil
}

func (s *offlineSession) Finish() error {
	if s.finished {
		return nil
	}
	_ = s.Log(map[string]any{"finished": true})
	s.finished = true
	return s.events.Close()
}

func (s *offlineSession) writeConfig() error {
	buf, err := json.MarshalIndent(s.config, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "config.json"), buf, 0o644); err != nil {
		return fmt.Errorf("write run config: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
