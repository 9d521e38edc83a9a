package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/m-manu/portage/bridge"
	"github.com/m-manu/portage/bytesutil"
	"github.com/m-manu/portage/entity"
	"github.com/m-manu/portage/fmte"
	"github.com/m-manu/portage/transfer"
)

// signalContext returns a context cancelled on SIGINT/SIGTERM, so an
// interrupted batch still produces a complete report.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runTransfer connects both endpoints and runs one batch between them.
// move additionally removes the source after a fully successful batch.
func runTransfer(cmd *cobra.Command, sourceArg, destinationArg string, move bool) error {
	source, err := parseEndpoint(cmd, sourceArg)
	if err != nil {
		return err
	}
	destination, err := parseEndpoint(cmd, destinationArg)
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
	recursive, _ := cmd.Flags().GetBool("recursive")
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

	opts := transfer.Options{
		Recursive:  recursive,
		Policy:     policy,
		Exclusions: exclusions,
	}
	var finishProgress func()
	if !noProgress && isInteractive() {
		opts.Progress, finishProgress = progressBar()
	}

	startedAt := time.Now()
	var report *entity.TransferReport
	var runErr error
	if move {
		report, runErr = transfer.Move(ctx, src, source.path, dst, destination.path, opts)
	} else {
		report, runErr = transfer.Transfer(ctx, src, source.path, dst, destination.path, opts)
	}
	if finishProgress != nil {
		finishProgress()
	}
	printReport(report, time.Since(startedAt))
	return runErr
}

// progressBar adapts a pterm progress bar to the engine's byte-cadence
// progress events. The bar total is only known once the first event arrives.
func progressBar() (callback func(transfer.ProgressEvent), finish func()) {
	var bar *pterm.ProgressbarPrinter
	var shown int64
	callback = func(ev transfer.ProgressEvent) {
		if bar == nil {
			if ev.BatchTotal <= 0 {
				return
			}
			bar, _ = pterm.DefaultProgressbar.
				WithTotal(int(ev.BatchTotal / bytesutil.KIBI)).
				WithTitle("Transferring").
				WithShowCount(false).
				Start()
		}
		if bar == nil {
			return
		}
		bar.UpdateTitle(ev.Path)
		if delta := ev.BatchBytes/bytesutil.KIBI - shown; delta > 0 {
			bar.Add(int(delta))
			shown += delta
		}
	}
	finish = func() {
		if bar != nil {
			_, _ = bar.Stop()
		}
	}
	return callback, finish
}

func printReport(report *entity.TransferReport, elapsed time.Duration) {
	if report == nil {
		return
	}
	for _, outcome := range report.Outcomes {
		switch outcome.Status {
		case entity.StatusFailed:
			fmte.PrintfErr("failed: %s: %v\n", outcome.Task.SourcePath, outcome.Err)
		case entity.StatusSkipped:
			fmte.PrintfV("skipped: %s (%s)\n", outcome.Task.SourcePath, outcome.Reason)
		default:
			fmte.PrintfV("done: %s (%s)\n", outcome.Task.SourcePath,
				bytesutil.BinaryFormat(outcome.BytesWritten))
		}
	}
	fmte.Printf("%d file(s) transferred, %d folder(s) created, %d skipped, %d failed\n",
		report.FilesTransferred, report.DirsCreated, report.SkippedCount, report.FailedCount)
	if report.BytesWritten > 0 {
		fmte.Printf("%s in %s (%s)\n", bytesutil.BinaryFormat(report.BytesWritten),
			elapsed.Round(time.Millisecond), bytesutil.RateFormat(report.BytesWritten, elapsed))
	}
}

// ExitCode distinguishes connection and authentication failures for
// scripted callers.
func ExitCode(err error) int {
	switch bridge.KindOf(err) {
	case bridge.KindAuth:
		return 3
	case bridge.KindConnection:
		return 2
	default:
		return 1
	}
}
