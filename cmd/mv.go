package cmd

import (
	"github.com/spf13/cobra"
)

var mvCmd = &cobra.Command{
	Use:   "mv <source> <destination>",
	Short: "Move a file or directory tree between endpoints",
	Long: `Transfers the source to the destination and removes the source afterwards.
The source is kept untouched if any task in the batch fails.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, args[0], args[1], true)
	},
}

func init() {
	addTransferFlags(mvCmd)
	rootCmd.AddCommand(mvCmd)
}
