package cmd

import (
	"github.com/spf13/cobra"

	"github.com/m-manu/portage/fmte"
	"github.com/m-manu/portage/transfer"
)

var rmCmd = &cobra.Command{
	Use:   "rm <endpoint>",
	Short: "Remove a file or directory on an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ep, err := parseEndpoint(cmd, args[0])
		if err != nil {
			return err
		}
		recursive, _ := cmd.Flags().GetBool("recursive")
		ctx, stop := signalContext()
		defer stop()
		b, err := connect(ctx, ep)
		if err != nil {
			return err
		}
		defer b.Disconnect()

		if err := transfer.Remove(ctx, b, ep.path, recursive); err != nil {
			return err
		}
		fmte.PrintfV("removed: %s\n", ep.path)
		return nil
	},
}

func init() {
	rmCmd.Flags().BoolP("recursive", "r", false, "remove directories and their contents")
	rootCmd.AddCommand(rmCmd)
}
