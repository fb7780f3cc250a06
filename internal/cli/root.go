// Package cli implements the pixelfix command line tool.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the pixelfix command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pixelfix",
		Short:         "PixelFix image enhancement client",
		Long:          "Enhance images with the configured provider, or talk to a running PixelFix server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newEnhanceCmd())
	root.AddCommand(newHealthCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
