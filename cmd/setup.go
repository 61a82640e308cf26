package cmd

import (
	"github.com/spf13/cobra"

	"github.com/redink/outliner/internal/setup"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Add or update a text provider interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setup.Run(configPath(), ioIn, ioOut)
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
