package cli

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/config"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/logging"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/observability"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/run"
)

// NewTrainCmd wires the train command: resolve config, open the metrics
// endpoint if configured, and hand off to the run orchestrator.
func NewTrainCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run one training job (fit, test, artifact registration)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Resolve(cmd.Flags(), opts.ConfigPath, opts.OverridePath)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metrics := observability.NewMetrics()
			if cfg.MetricsAddr != "" {
				observability.Serve(ctx, cfg.MetricsAddr, metrics, logger)
			}

			return run.New(cfg, logger, metrics).Execute(ctx)
		},
	}

	registerTrainFlags(cmd.Flags())
	return cmd
}

// registerTrainFlags declares the full option surface. Flag names double as
// config-file keys, so they keep the underscore spelling.
func registerTrainFlags(f *pflag.FlagSet) {
	f.Bool("verbose", false, "Verbose checkpoint logging")
	f.Bool("reduced_data_mode", false, "Use less data for faster iteration")
	f.String("log_level", "info", "Log level: debug, info, warn, error")
	f.String("log_format", "console", "Log format: console or json")

	f.String("project", "", "Experiment-tracker project")
	f.String("entity", "", "Experiment-tracker entity")
	f.String("tracker_url", "", "Experiment-tracker base URL (empty: offline store)")
	f.String("tracker_dir", "runs", "Offline tracker store directory")
	f.String("metrics_addr", "", "Serve Prometheus metrics on this address while training")

	f.String("checkpoint_filename", "", "Pretrained checkpoint filename")
	f.String("checkpoint_dir", "checkpoints", "Directory to save checkpoints under")
	f.String("pretrained_checkpoint_dir", "", "Directory to load pretrained checkpoints from")

	f.String("dataset_path", "../data/", "Image dataset root")
	f.String("dataset_csv_path", "", "Path to the dataset split CSV directory (required)")
	f.String("dataset_artifact", "", "Tracked dataset artifact reference, e.g. comb_mln2:latest")
	f.String("class_mapping_filename", "class_mapping.json", "Class mapping filename inside dataset_csv_path")
	f.String("transform_path", "configs/transforms/default.yaml", "Transform pipeline spec")

	f.Int64("seed", 42, "Seed for all random sources")
	f.Int("fold_id", 1, "Cross-validation fold index")
	f.Int("max_epochs", 50, "Maximum training epochs")
	f.Int("train_bs", 0, "Training batch size (default 64)")
	f.Int("val_bs", 0, "Validation batch size (default 64)")
	f.Int("num_workers", 16, "Data loader worker count")

	f.Int("num_nodes", 1, "Node count")
	f.Int("num_devices", 1, "Device count per node")

	f.String("ft_mode", "full", "Fine-tune mode: head, backbone, or full")
	f.String("metric", "val_AUC_macro", "Metric to optimize: "+strings.Join(config.SupportedMetrics, ", "))
	f.Float64("train_frac", 1, "Fraction of training data to use")
	f.Float64("val_frac", 1, "Fraction of validation data to use")
	f.Bool("train_loader_only", false, "Train only, no validation")
	f.Bool("include_test_in_train", false, "Fold test data into training data")

	f.String("model_arch", "regnety_640.seer", "Model architecture")
	f.String("model_type", "seer", "Model family: seer, endovit, or timm")
	f.Int("img_size", 224, "Input image size")

	f.String("optimizer", "adabelief", "Optimizer name")
	f.Float64("lr", 1e-6, "Learning rate")
	f.Float64("weight_decay", 2e-4, "Weight decay")

	f.String("scheduler", "cosine", "LR scheduler: cosine, lambda, or constant")
	f.Float64("eta_min", 0, "Minimum learning rate for the cosine scheduler")
	f.Float64("lambda_factor", 0.95, "Decay factor for the lambda scheduler")
}
