package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Metrics the checkpoint policy may monitor. The engine maximizes whichever
// one is selected.
var SupportedMetrics = []string{"val_mAP_weighted", "val_AUC_macro", "val_f1_weighted"}

// Fine-tune modes accepted on the CLI.
var SupportedFTModes = []string{"head", "backbone", "full"}

// Config is the effective configuration of one training run. It is resolved
// once at startup (see Resolve) and treated as immutable afterwards; any
// sweep-assigned values are folded in through Merged, which returns a new
// snapshot rather than mutating in place.
type Config struct {
	Verbose         bool   `mapstructure:"verbose"`
	ReducedDataMode bool   `mapstructure:"reduced_data_mode"`
	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format"`

	Project     string `mapstructure:"project"`
	Entity      string `mapstructure:"entity"`
	TrackerURL  string `mapstructure:"tracker_url"`
	TrackerDir  string `mapstructure:"tracker_dir"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	CheckpointFilename      string `mapstructure:"checkpoint_filename"`
	CheckpointDir           string `mapstructure:"checkpoint_dir"`
	PretrainedCheckpointDir string `mapstructure:"pretrained_checkpoint_dir"`

	DatasetPath          string `mapstructure:"dataset_path"`
	DatasetCSVPath       string `mapstructure:"dataset_csv_path"`
	DatasetArtifact      string `mapstructure:"dataset_artifact"`
	ClassMappingFilename string `mapstructure:"class_mapping_filename"`
	TransformPath        string `mapstructure:"transform_path"`

	Seed       int64 `mapstructure:"seed"`
	FoldID     int   `mapstructure:"fold_id"`
	MaxEpochs  int   `mapstructure:"max_epochs"`
	TrainBS    int   `mapstructure:"train_bs"`
	ValBS      int   `mapstructure:"val_bs"`
	NumWorkers int   `mapstructure:"num_workers"`
	NumNodes   int   `mapstructure:"num_nodes"`
	NumDevices int   `mapstructure:"num_devices"`

	FTMode             string  `mapstructure:"ft_mode"`
	Metric             string  `mapstructure:"metric"`
	TrainFrac          float64 `mapstructure:"train_frac"`
	ValFrac            float64 `mapstructure:"val_frac"`
	TrainLoaderOnly    bool    `mapstructure:"train_loader_only"`
	IncludeTestInTrain bool    `mapstructure:"include_test_in_train"`

	ModelArch string `mapstructure:"model_arch"`
	ModelType string `mapstructure:"model_type"`
	ImgSize   int    `mapstructure:"img_size"`

	Optimizer   string  `mapstructure:"optimizer"`
	LR          float64 `mapstructure:"lr"`
	WeightDecay float64 `mapstructure:"weight_decay"`

	Scheduler    string  `mapstructure:"scheduler"`
	EtaMin       float64 `mapstructure:"eta_min"`
	LambdaFactor float64 `mapstructure:"lambda_factor"`
}

// Validate performs sanity checks the resolver cannot: it knows nothing about
// which options downstream consumers require.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatasetCSVPath) == "" {
		return errors.New("dataset_csv_path is required")
	}

	if !contains(SupportedMetrics, c.Metric) {
		return fmt.Errorf("metric must be one of %s, got %q", strings.Join(SupportedMetrics, ", "), c.Metric)
	}

	if !contains(SupportedFTModes, c.FTMode) {
		return fmt.Errorf("ft_mode must be one of %s, got %q", strings.Join(SupportedFTModes, ", "), c.FTMode)
	}

	if c.MaxEpochs <= 0 {
		return fmt.Errorf("max_epochs must be > 0, got %d", c.MaxEpochs)
	}

	if c.TrainBS < 0 || c.ValBS < 0 {
		return errors.New("batch sizes cannot be negative")
	}

	if c.NumWorkers < 0 {
		return errors.New("num_workers cannot be negative")
	}

	if c.NumNodes < 1 || c.NumDevices < 1 {
		return errors.New("num_nodes and num_devices must be >= 1")
	}

	if c.TrainFrac <= 0 || c.TrainFrac > 1 {
		return fmt.Errorf("train_frac must be in (0, 1], got %g", c.TrainFrac)
	}
	if c.ValFrac <= 0 || c.ValFrac > 1 {
		return fmt.Errorf("val_frac must be in (0, 1], got %g", c.ValFrac)
	}

	if c.ImgSize <= 0 {
		return fmt.Errorf("img_size must be > 0, got %d", c.ImgSize)
	}

	if c.LR <= 0 {
		return fmt.Errorf("lr must be > 0, got %g", c.LR)
	}
	if c.WeightDecay < 0 {
		return errors.New("weight_decay cannot be negative")
	}
	if c.LambdaFactor <= 0 || c.LambdaFactor > 1 {
		return fmt.Errorf("lambda_factor must be in (0, 1], got %g", c.LambdaFactor)
	}

	return nil
}

// Snapshot flattens the config into the option-name keyed map recorded by the
// experiment tracker at session init.
func (c *Config) Snapshot() map[string]any {
	return map[string]any{
		"verbose":                   c.Verbose,
		"reduced_data_mode":         c.ReducedDataMode,
		"log_level":                 c.LogLevel,
		"log_format":                c.LogFormat,
		"project":                   c.Project,
		"entity":                    c.Entity,
		"tracker_url":               c.TrackerURL,
		"tracker_dir":               c.TrackerDir,
		"metrics_addr":              c.MetricsAddr,
		"checkpoint_filename":       c.CheckpointFilename,
		"checkpoint_dir":            c.CheckpointDir,
		"pretrained_checkpoint_dir": c.PretrainedCheckpointDir,
		"dataset_path":              c.DatasetPath,
		"dataset_csv_path":          c.DatasetCSVPath,
		"dataset_artifact":          c.DatasetArtifact,
		"class_mapping_filename":    c.ClassMappingFilename,
		"transform_path":            c.TransformPath,
		"seed":                      c.Seed,
		"fold_id":                   c.FoldID,
		"max_epochs":                c.MaxEpochs,
		"train_bs":                  c.TrainBS,
		"val_bs":                    c.ValBS,
		"num_workers":               c.NumWorkers,
		"num_nodes":                 c.NumNodes,
		"num_devices":               c.NumDevices,
		"ft_mode":                   c.FTMode,
		"metric":                    c.Metric,
		"train_frac":                c.TrainFrac,
		"val_frac":                  c.ValFrac,
		"train_loader_only":         c.TrainLoaderOnly,
		"include_test_in_train":     c.IncludeTestInTrain,
		"model_arch":                c.ModelArch,
		"model_type":                c.ModelType,
		"img_size":                  c.ImgSize,
		"optimizer":                 c.Optimizer,
		"lr":                        c.LR,
		"weight_decay":              c.WeightDecay,
		"scheduler":                 c.Scheduler,
		"eta_min":                   c.EtaMin,
		"lambda_factor":             c.LambdaFactor,
	}
}

// Merged returns a new Config with overrides applied wholesale on top of the
// receiver's snapshot. Used for sweep-assigned hyperparameters: the tracker
// hands back a map, and the run continues on the merged snapshot.
func (c *Config) Merged(overrides map[string]any) (*Config, error) {
	if len(overrides) == 0 {
		out := *c
		return &out, nil
	}

	merged := c.Snapshot()
	for k, v := range overrides {
		merged[strings.ToLower(k)] = v
	}

	out, err := decode(merged)
	if err != nil {
		return nil, fmt.Errorf("merge sweep config: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("merged config invalid: %w", err)
	}
	return out, nil
}

// decode turns an option map into a typed Config via viper's mapstructure path.
func decode(settings map[string]any) (*Config, error) {
	v := viper.New()
	if err := v.MergeConfigMap(settings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
