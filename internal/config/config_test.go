package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// testFlags declares the subset of options the resolver tests exercise, with
// the same defaults the train command uses.
func testFlags(t *testing.T) *pflag.FlagSet {
	t.Helper()
	f := pflag.NewFlagSet("train", pflag.ContinueOnError)
	f.String("dataset_csv_path", "", "")
	f.String("metric", "val_AUC_macro", "")
	f.String("ft_mode", "full", "")
	f.Int("max_epochs", 50, "")
	f.Int("train_bs", 0, "")
	f.Int("val_bs", 0, "")
	f.Int("num_workers", 16, "")
	f.Int("num_nodes", 1, "")
	f.Int("num_devices", 1, "")
	f.Int64("seed", 42, "")
	f.Int("fold_id", 1, "")
	f.Float64("train_frac", 1, "")
	f.Float64("val_frac", 1, "")
	f.Int("img_size", 224, "")
	f.Float64("lr", 1e-6, "")
	f.Float64("weight_decay", 2e-4, "")
	f.Float64("lambda_factor", 0.95, "")
	f.String("model_type", "seer", "")
	f.String("model_arch", "regnety_640.seer", "")
	return f
}

func writeYAML(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveExplicitCLIBeatsFile(t *testing.T) {
	flags := testFlags(t)
	require.NoError(t, flags.Parse([]string{"--train_bs", "64", "--dataset_csv_path", "/data/splits"}))

	file := writeYAML(t, "config.yaml", "train_bs: 32\nmax_epochs: 10\n")

	cfg, layers, err := Resolve(flags, file, "")
	require.NoError(t, err)
	require.Equal(t, 64, cfg.TrainBS)  // explicit CLI wins
	require.Equal(t, 10, cfg.MaxEpochs) // file fills the unset default
	require.EqualValues(t, 32, layers.File["train_bs"])
}

func TestResolveOverrideBeatsExplicitCLI(t *testing.T) {
	flags := testFlags(t)
	require.NoError(t, flags.Parse([]string{"--train_bs", "64", "--dataset_csv_path", "/data/splits"}))

	file := writeYAML(t, "config.yaml", "train_bs: 32\n")
	override := writeYAML(t, "override.yaml", "train_bs: 128\n")

	cfg, layers, err := Resolve(flags, file, override)
	require.NoError(t, err)
	// override file wins unconditionally, even over the explicit flag
	require.Equal(t, 128, cfg.TrainBS)
	require.EqualValues(t, 128, layers.Override["train_bs"])
}

func TestResolveMissingOverrideIsNotAnError(t *testing.T) {
	flags := testFlags(t)
	require.NoError(t, flags.Parse([]string{"--dataset_csv_path", "/data/splits"}))

	cfg, _, err := Resolve(flags, "", filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "/data/splits", cfg.DatasetCSVPath)
}

func TestResolveOverridePathFromEnv(t *testing.T) {
	override := writeYAML(t, "override.yaml", "max_epochs: 3\n")
	t.Setenv(OverridePathEnv, override)

	flags := testFlags(t)
	require.NoError(t, flags.Parse([]string{"--dataset_csv_path", "/data/splits"}))

	cfg, _, err := Resolve(flags, "", "")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxEpochs)
}

func TestResolveRequiresDatasetCSVPath(t *testing.T) {
	flags := testFlags(t)
	require.NoError(t, flags.Parse(nil))

	_, _, err := Resolve(flags, "", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "dataset_csv_path")
}

func TestResolveCarriesUndeclaredFileKeys(t *testing.T) {
	flags := testFlags(t)
	require.NoError(t, flags.Parse([]string{"--dataset_csv_path", "/data/splits"}))

	file := writeYAML(t, "config.yaml", "project: capsule-vision\n")

	cfg, _, err := Resolve(flags, file, "")
	require.NoError(t, err)
	require.Equal(t, "capsule-vision", cfg.Project)
}

func TestValidateRejectsBadEnums(t *testing.T) {
	cfg := validConfig()
	cfg.Metric = "val_accuracy"
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.FTMode = "heads"
	require.Error(t, cfg.Validate())
}

func TestMergedReturnsNewSnapshot(t *testing.T) {
	cfg := validConfig()

	merged, err := cfg.Merged(map[string]any{"lr": 0.001, "max_epochs": 7})
	require.NoError(t, err)
	require.InDelta(t, 0.001, merged.LR, 1e-12)
	require.Equal(t, 7, merged.MaxEpochs)

	// the original snapshot is untouched
	require.InDelta(t, 1e-6, cfg.LR, 1e-12)
	require.Equal(t, 50, cfg.MaxEpochs)
}

func TestMergedRejectsInvalidValues(t *testing.T) {
	cfg := validConfig()
	_, err := cfg.Merged(map[string]any{"train_frac": 2.0})
	require.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		DatasetCSVPath: "/data/splits",
		Metric:         "val_AUC_macro",
		FTMode:         "full",
		MaxEpochs:      50,
		NumNodes:       1,
		NumDevices:     1,
		TrainFrac:      1,
		ValFrac:        1,
		ImgSize:        224,
		LR:             1e-6,
		LambdaFactor:   0.95,
	}
}
