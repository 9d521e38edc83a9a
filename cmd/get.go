package cmd

import (
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <remote> <local>",
	Short: "Download a file or directory tree from a remote host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, args[0], args[1], false)
	},
}

func init() {
	addTransferFlags(getCmd)
	rootCmd.AddCommand(getCmd)
}
