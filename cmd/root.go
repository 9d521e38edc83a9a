package cmd

import (
	"github.com/spf13/cobra"

	"github.com/m-manu/portage/fmte"
	"github.com/m-manu/portage/profile"
)

var rootCmd = &cobra.Command{
	Use:   "portage",
	Short: "Terminal file transfer for SCP, SFTP and FTP/FTPS",
	Long: `Portage moves files and directory trees between this machine and remote
hosts over SCP, SFTP or FTP/FTPS, with resumable syncs and per-file reports.

Remote endpoints are given as URLs (sftp://user@host:2222/var/log) or as
profile references (backups:/var/log) resolved from the profiles file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			fmte.VerboseOn()
		}
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("profiles", profile.DefaultPath(), "profiles file path")
	rootCmd.PersistentFlags().Duration("connect-timeout", 0, "connection timeout (0 = default)")
	rootCmd.PersistentFlags().Duration("stall-timeout", 0, "per-exchange stall timeout (0 = default)")
	rootCmd.PersistentFlags().Bool("insecure-host-key", false, "skip SSH host key verification")
	rootCmd.PersistentFlags().Bool("insecure-tls", false, "skip FTPS certificate verification")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
}
