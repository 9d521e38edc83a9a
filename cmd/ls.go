package cmd

import (
	"github.com/spf13/cobra"

	"github.com/m-manu/portage/bytesutil"
	"github.com/m-manu/portage/entity"
	"github.com/m-manu/portage/fmte"
)

var lsCmd = &cobra.Command{
	Use:   "ls <endpoint>",
	Short: "List a directory on an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ep, err := parseEndpoint(cmd, args[0])
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		b, err := connect(ctx, ep)
		if err != nil {
			return err
		}
		defer b.Disconnect()

		listing, err := b.List(ep.path)
		if err != nil {
			return err
		}
		entity.SortEntries(listing.Entries)
		for _, e := range listing.Entries {
			fmte.Printf("%s  %10s  %s  %s\n", modeColumn(e), sizeColumn(e), timeColumn(e), nameColumn(e))
		}
		if listing.Skipped > 0 {
			fmte.PrintfErr("warning: %d entr(ies) could not be parsed and were skipped\n", listing.Skipped)
		}
		return nil
	},
}

func modeColumn(e entity.RemoteEntry) string {
	if !e.ModeKnown {
		return "??????????"
	}
	return e.Mode.String()
}

func sizeColumn(e entity.RemoteEntry) string {
	if e.IsDir {
		return "-"
	}
	return bytesutil.BinaryFormat(e.Size)
}

func timeColumn(e entity.RemoteEntry) string {
	if e.ModTime.IsZero() {
		return "                "
	}
	return e.ModTime.Format("2006-01-02 15:04")
}

func nameColumn(e entity.RemoteEntry) string {
	name := e.Base()
	if e.IsSymlink && e.SymlinkTarget != "" {
		return name + " -> " + e.SymlinkTarget
	}
	return name
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
