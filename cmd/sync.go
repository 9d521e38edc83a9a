package cmd

import (
	"path"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/m-manu/portage/diff"
	"github.com/m-manu/portage/entity"
	"github.com/m-manu/portage/transfer"
)

var syncCmd = &cobra.Command{
	Use:   "sync <source> <destination>",
	Short: "Reconcile a destination tree with a source tree",
	Long: `Compares the two trees, shows what would change, and transfers only the
entries that differ. A destination entry that is newer than its source
counterpart is reported as a conflict and never overwritten silently.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := parseEndpoint(cmd, args[0])
		if err != nil {
			return err
		}
		destination, err := parseEndpoint(cmd, args[1])
		if err != nil {
			return err
		}
		policy, err := policyFromFlags(cmd)
		if err != nil {
			return err
		}
		exclusions, err := exclusionsFromFlags(cmd)
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noProgress, _ := cmd.Flags().GetBool("no-progress")

		ctx, stop := signalContext()
		defer stop()

		src, err := connect(ctx, source)
		if err != nil {
			return err
		}
		defer src.Disconnect()
		dst, err := connect(ctx, destination)
		if err != nil {
			return err
		}
		defer dst.Disconnect()

		spinner, _ := pterm.DefaultSpinner.Start("Scanning trees...")
		sourceSnapshot, err := transfer.Snapshot(ctx, src, source.path, exclusions)
		if err != nil {
			spinner.Fail("Source scan failed: " + err.Error())
			return err
		}
		destinationSnapshot, err := transfer.Snapshot(ctx, dst, destination.path, exclusions)
		if err != nil {
			spinner.Fail("Destination scan failed: " + err.Error())
			return err
		}
		spinner.Success("Trees scanned")

		direction := directionFor(source, destination)
		decisions := diff.Decisions(sourceSnapshot, destinationSnapshot, direction, policy)
		if policy == entity.PolicyPromptOnConflict && isInteractive() {
			decisions = diff.ResolveConflicts(decisions, promptConflict)
		}

		printPlan(decisions)
		pending := diff.Pending(decisions)
		if dryRun || len(pending) == 0 {
			return nil
		}

		tasks := make([]entity.TransferTask, 0, len(pending))
		for _, d := range pending {
			task := d.Task
			task.DestinationPath = joinDestination(destination, task.DestinationPath)
			tasks = append(tasks, task)
		}
		opts := transfer.Options{Recursive: true, Policy: policy, Exclusions: exclusions}
		var finishProgress func()
		if !noProgress && isInteractive() {
			opts.Progress, finishProgress = progressBar()
		}
		startedAt := time.Now()
		report, runErr := transfer.Execute(ctx, src, dst, tasks, opts)
		if finishProgress != nil {
			finishProgress()
		}
		printReport(report, time.Since(startedAt))
		return runErr
	},
}

func printPlan(decisions []entity.SyncDecision) {
	var copies, overwrites, skips, conflicts int
	for _, d := range decisions {
		switch d.Action {
		case entity.ActionCopy:
			copies++
			pterm.Printfln("  %s %s", pterm.FgGreen.Sprint("+"), d.Task.SourcePath)
		case entity.ActionOverwrite:
			overwrites++
			pterm.Printfln("  %s %s (%s)", pterm.FgYellow.Sprint("~"), d.Task.SourcePath, d.Reason)
		case entity.ActionConflict:
			conflicts++
			pterm.Printfln("  %s %s (%s)", pterm.FgRed.Sprint("!"), d.Task.SourcePath, d.Reason)
		default:
			skips++
		}
	}
	pterm.Printfln("Plan: %d to copy, %d to overwrite, %d unchanged, %d conflict(s).",
		copies, overwrites, skips, conflicts)
}

func promptConflict(d entity.SyncDecision) entity.SyncAction {
	overwrite, err := pterm.DefaultInteractiveConfirm.
		WithDefaultValue(false).
		Show(pterm.Sprintf("Overwrite %s? (%s)", d.Task.DestinationPath, d.Reason))
	if err != nil || !overwrite {
		return entity.ActionSkip
	}
	return entity.ActionOverwrite
}

func directionFor(source, destination endpoint) entity.TransferDirection {
	switch {
	case source.local && destination.local:
		return entity.DirectionLocalCopy
	case source.local:
		return entity.DirectionUpload
	default:
		return entity.DirectionDownload
	}
}

// joinDestination joins a tree-relative path onto the destination root with
// the destination's separator conventions.
func joinDestination(destination endpoint, relPath string) string {
	if destination.local {
		return filepath.Join(destination.path, filepath.FromSlash(relPath))
	}
	return path.Join(destination.path, relPath)
}

func init() {
	addPolicyFlags(syncCmd)
	syncCmd.Flags().Bool("dry-run", false, "show the plan without transferring anything")
	rootCmd.AddCommand(syncCmd)
}
