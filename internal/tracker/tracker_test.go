package tracker

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOfflineSessionLifecycle(t *testing.T) {
	t.Setenv(SweepIDEnv, "")
	dir := t.TempDir()

	s, err := Init(context.Background(), Options{
		Entity:  "lab",
		Project: "capsule",
		Config:  map[string]any{"seed": 42},
		Dir:     dir,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.RunName())
	require.Empty(t, s.SweepID())
	require.Nil(t, s.AssignedConfig())

	require.NoError(t, s.UpdateConfig(map[string]any{"train_bs": 64}))
	require.NoError(t, s.Log(map[string]any{"epoch": 1, "val_AUC_macro": 0.7}))

	ckpt := filepath.Join(t.TempDir(), "best.ckpt")
	require.NoError(t, os.WriteFile(ckpt, []byte("weights"), 0o644))
	require.NoError(t, s.LogArtifact(Artifact{Name: "best-model", Type: "model", Path: ckpt}))

	resolved, err := s.UseArtifact("best-model:latest")
	require.NoError(t, err)
	require.FileExists(t, resolved)

	require.NoError(t, s.Finish())
	require.Error(t, s.Log(map[string]any{"late": true}))

	runDir := filepath.Join(dir, s.RunName())
	var cfg map[string]any
	buf, err := os.ReadFile(filepath.Join(runDir, "config.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(buf, &cfg))
	require.EqualValues(t, 64, cfg["train_bs"])
	require.Equal(t, "capsule", cfg["project"])

	events, err := os.Open(filepath.Join(runDir, "events.jsonl"))
	require.NoError(t, err)
	defer events.Close()
	lines := 0
	scanner := bufio.NewScanner(events)
	for scanner.Scan() {
		lines++
	}
	require.GreaterOrEqual(t, lines, 3) // metric, artifact, finished
}

func TestOfflineArtifactVersions(t *testing.T) {
	s, err := initOffline(Options{Dir: t.TempDir(), Logger: zap.NewNop()}, "")
	require.NoError(t, err)

	ckpt := filepath.Join(t.TempDir(), "best.ckpt")
	require.NoError(t, os.WriteFile(ckpt, []byte("v0"), 0o644))
	require.NoError(t, s.LogArtifact(Artifact{Name: "m", Type: "model", Path: ckpt}))
	require.NoError(t, os.WriteFile(ckpt, []byte("v1"), 0o644))
	require.NoError(t, s.LogArtifact(Artifact{Name: "m", Type: "model", Path: ckpt}))

	path, err := s.UseArtifact("m")
	require.NoError(t, err)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "v1", string(body))
}

func TestRemoteSessionInitAndSweep(t *testing.T) {
	t.Setenv(SweepIDEnv, "")

	var gotInit initRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/runs/init":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotInit))
			_ = json.NewEncoder(w).Encode(initResponse{
				RunID:          "r-1",
				RunName:        "eager-snow-7",
				SweepID:        "s1",
				AssignedConfig: map[string]any{"lr": 0.001},
			})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	s, err := Init(context.Background(), Options{
		Entity:  "lab",
		Project: "capsule",
		Config:  map[string]any{"seed": 42},
		BaseURL: srv.URL,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	require.Equal(t, "lab", gotInit.Entity)
	require.Equal(t, "eager-snow-7", s.RunName())
	require.Equal(t, "s1", s.SweepID())
	require.Equal(t, map[string]any{"lr": 0.001}, s.AssignedConfig())

	require.NoError(t, s.Log(map[string]any{"epoch": 1}))
	require.NoError(t, s.Finish())
}
