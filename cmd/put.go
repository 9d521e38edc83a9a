package cmd

import (
	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <local> <remote>",
	Short: "Upload a file or directory tree to a remote host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, args[0], args[1], false)
	},
}

func init() {
	addTransferFlags(putCmd)
	rootCmd.AddCommand(putCmd)
}
