package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/version"
)

// NewVersionCmd prints the compiled version details.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show lesiontrain version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}
