package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/config"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/data"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/sysinfo"
)

// NewDoctorCmd returns a health-check command validating configuration,
// dataset paths, and environment. It also prints which config layer supplied
// each overridden value, since the override file wins even over explicit CLI
// flags.
func NewDoctorCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration, dataset layout, and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, layers, err := config.Resolve(cmd.Flags(), opts.ConfigPath, opts.OverridePath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. model_type=%s metric=%s fold=%d\n", cfg.ModelType, cfg.Metric, cfg.FoldID)

			printLayer(out, "file", layers.File)
			printLayer(out, "cli", layers.CLI)
			printLayer(out, "override (wins over cli)", layers.Override)

			mappingPath := filepath.Join(cfg.DatasetCSVPath, cfg.ClassMappingFilename)
			if mapping, err := data.LoadClassMapping(mappingPath); err != nil {
				fmt.Fprintf(out, "class mapping: FAIL (%v)\n", err)
			} else {
				fmt.Fprintf(out, "class mapping: OK (%d classes)\n", len(mapping))
			}

			if _, _, _, err := data.LoadTransforms(cfg.ImgSize, cfg.TransformPath); err != nil {
				fmt.Fprintf(out, "transform spec: FAIL (%v)\n", err)
			} else {
				fmt.Fprintln(out, "transform spec: OK")
			}

			if _, err := os.Stat(cfg.DatasetPath); err != nil {
				fmt.Fprintf(out, "dataset path: FAIL (%v)\n", err)
			} else {
				fmt.Fprintln(out, "dataset path: OK")
			}

			accel := sysinfo.Detect()
			fmt.Fprintf(out, "accelerator: %s (devices: %d)\n", accel.Kind, accel.Devices)
			fmt.Fprintf(out, "logical cpus: %d\n", sysinfo.CPUCount())
			if memGB, err := sysinfo.HostMemoryGB(); err == nil {
				fmt.Fprintf(out, "host memory: %.1f GiB\n", memGB)
			}
			return nil
		},
	}

	registerTrainFlags(cmd.Flags())
	return cmd
}

func printLayer(out io.Writer, name string, layer map[string]any) {
	if len(layer) == 0 {
		return
	}
	keys := make([]string, 0, len(layer))
	for k := range layer {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  [%s] %s=%v\n", name, k, layer[k])
	}
}
