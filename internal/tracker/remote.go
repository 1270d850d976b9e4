package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// remoteSession talks JSON over HTTP to the tracking service. Every call is
// unary; failures propagate uncaught per the no-retry policy.
type remoteSession struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	runID    string
	runName  string
	sweepID  string
	assigned map[string]any
	finished bool
}

type initRequest struct {
	Entity  string         `json:"entity"`
	Project string         `json:"project"`
	SweepID string         `json:"sweep_id,omitempty"`
	JobType string         `json:"job_type"`
	Config  map[string]any `json:"config"`
}

type initResponse struct {
	RunID          string         `json:"run_id"`
	RunName        string         `json:"run_name"`
	SweepID        string         `json:"sweep_id"`
	AssignedConfig map[string]any `json:"assigned_config"`
}

func initRemote(ctx context.Context, opts Options, sweepID string) (*remoteSession, error) {
	s := &remoteSession{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  opts.Logger,
		runID:   uuid.NewString(),
	}

	req := initRequest{
		Entity:  opts.Entity,
		Project: opts.Project,
		SweepID: sweepID,
		JobType: "train",
		Config:  opts.Config,
	}

	var resp initResponse
	if err := s.postJSON(ctx, "/api/runs/init", req, &resp); err != nil {
		return nil, err
	}

	if resp.RunID != "" {
		s.runID = resp.RunID
	}
	s.runName = resp.RunName
	if s.runName == "" {
		s.runName = s.runID[:8]
	}
	s.sweepID = resp.SweepID
	if s.sweepID == "" {
		s.sweepID = sweepID
	}
	s.assigned = resp.AssignedConfig

	s.logger.Info("tracker session started",
		zap.String("run", s.runName), zap.String("sweep", s.sweepID))
	return s, nil
}

func (s *remoteSession) RunName() string                { return s.runName }
func (s *remoteSession) SweepID() string                { return s.sweepID }
func (s *remoteSession) AssignedConfig() map[string]any { return s.assigned }

func (s *remoteSession) UpdateConfig(values map[string]any) error {
	return s.postJSON(context.Background(), s.runPath("config"), values, nil)
}

func (s *remoteSession) Log(values map[string]any) error {
	return s.postJSON(context.Background(), s.runPath("log"), values, nil)
}

// LogArtifact uploads the file as multipart form data together with its
// name/type metadata. The service assigns the version.
func (s *remoteSession) LogArtifact(a Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", a.Path, err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	_ = w.WriteField("name", a.Name)
	_ = w.WriteField("type", a.Type)
	part, err := w.CreateFormFile("file", filepath.Base(a.Path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("buffer artifact %s: %w", a.Path, err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL+s.runPath("artifacts"), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload artifact %s: %w", a.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload artifact %s: tracker returned status %d", a.Name, resp.StatusCode)
	}
	return nil
}

// UseArtifact downloads the referenced artifact into a temp directory and
// returns the local path.
func (s *remoteSession) UseArtifact(ref string) (string, error) {
	url := fmt.Sprintf("%s/api/artifacts/%s", s.baseURL, ref)
	resp, err := s.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch artifact %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch artifact %s: tracker returned status %d", ref, resp.StatusCode)
	}

	dir, err := os.MkdirTemp("", "artifact-")
	if err != nil {
		return "", err
	}

	name := strings.ReplaceAll(ref, ":", "-")
	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("download artifact %s: %w", ref, err)
	}
	return path, nil
}

func (s *remoteSession) Finish() error {
	if s.finished {
		return nil
	}
	s.finished = true
	return s.postJSON(context.Background(), s.runPath("finish"), map[string]any{}, nil)
}

func (s *remoteSession) runPath(suffix string) string {
	return fmt.Sprintf("/api/runs/%s/%s", s.runID, suffix)
}

func (s *remoteSession) postJSON(ctx context.Context, path string, payload any, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("tracker request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("tracker request %s: status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tracker response %s: %w", path, err)
	}
	return nil
}
