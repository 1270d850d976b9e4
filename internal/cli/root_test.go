package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/config"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.NotEmpty(t, buf.String())
}

func TestDoctorWithExampleConfig(t *testing.T) {
	t.Setenv(config.OverridePathEnv, "")

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	configPath, err := filepath.Abs(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)
	require.FileExists(t, configPath)

	cmd.SetArgs([]string{"doctor", "--config", configPath})

	err = cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, buf.String(), "Config OK")
}

func TestDoctorReportsOverrideLayer(t *testing.T) {
	t.Setenv(config.OverridePathEnv, "")

	dir := t.TempDir()
	overridePath := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(overridePath, []byte("train_bs: 128\n"), 0o644))

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	configPath, err := filepath.Abs(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)

	cmd.SetArgs([]string{"doctor", "--config", configPath, "--override-config", overridePath, "--train_bs", "64"})

	err = cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, buf.String(), "[override (wins over cli)] train_bs=128")
}

func TestTrainFailsWithoutDatasetCSVPath(t *testing.T) {
	t.Setenv(config.OverridePathEnv, "")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"train"})

	err := cmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "dataset_csv_path")
}
