package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/version"
)

// Options holds global CLI options shared by subcommands.
type Options struct {
	ConfigPath   string
	OverridePath string
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:           "lesiontrain",
		Short:         "Capsule-endoscopy lesion classification training driver",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.OverridePath, "override-config", "", "Path to override configuration file (default: $LESIONTRAIN_OVERRIDE_CONFIG)")

	cmd.AddCommand(NewTrainCmd(opts))
	cmd.AddCommand(NewDoctorCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command, exiting non-zero on any error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
