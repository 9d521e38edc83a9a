// Package transfer walks a source tree reachable through one host bridge and
// replays it onto another, one serialized protocol exchange at a time. A
// failed file does not abort the batch; a lost session or a cancellation
// does, with every remaining task still accounted for in the report.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"

	set "github.com/deckarep/golang-set/v2"

	"github.com/m-manu/portage/bridge"
	"github.com/m-manu/portage/diff"
	"github.com/m-manu/portage/entity"
)

const (
	defaultBufferSize    = 32 * 1024
	defaultProgressEvery = 256 * 1024
)

// ProgressEvent is delivered to the progress callback at a byte-count
// cadence, so large files report partial progress without per-byte overhead.
type ProgressEvent struct {
	TaskIndex  int // 0-based index of the running task
	TaskCount  int
	Path       string // source path of the running task
	TaskBytes  int64  // bytes moved for this task so far
	TaskTotal  int64
	BatchBytes int64 // bytes moved for the whole batch so far
	BatchTotal int64
}

// Options tune one batch.
type Options struct {
	// Recursive descends into directories; otherwise only the root entry
	// (or the immediate files of a root directory) is transferred.
	Recursive bool
	// Policy decides what happens when the destination already has a file.
	Policy entity.OverwritePolicy
	// Exclusions holds base names to skip during enumeration.
	Exclusions set.Set[string]
	// Progress, when set, receives events every ProgressEvery bytes and at
	// task boundaries.
	Progress func(ProgressEvent)

	BufferSize    int
	ProgressEvery int64
}

func (o Options) bufferSize() int {
	if o.BufferSize > 0 {
		return o.BufferSize
	}
	return defaultBufferSize
}

func (o Options) progressEvery() int64 {
	if o.ProgressEvery > 0 {
		return o.ProgressEvery
	}
	return defaultProgressEvery
}

func (o Options) excluded(name string) bool {
	return o.Exclusions != nil && o.Exclusions.Contains(name)
}

// Transfer enumerates sourceRoot on src and copies it under destinationRoot
// on dst. The returned report accounts for every enumerated task exactly
// once, also when the batch is cut short. The returned error is nil unless
// the batch as a whole could not run or was cut short (lost session,
// cancellation); per-file failures live only in the report.
func Transfer(ctx context.Context, src bridge.Bridge, sourceRoot string,
	dst bridge.Bridge, destinationRoot string, opts Options) (*entity.TransferReport, error) {
	tasks, err := Enumerate(ctx, src, sourceRoot, dst, destinationRoot, opts)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, src, dst, tasks, opts)
}

// Enumerate walks sourceRoot depth-first, directories before their children,
// so destination directories exist before files are written into them.
func Enumerate(ctx context.Context, src bridge.Bridge, sourceRoot string,
	dst bridge.Bridge, destinationRoot string, opts Options) ([]entity.TransferTask, error) {
	rootEntry, err := src.Stat(sourceRoot)
	if err != nil {
		return nil, err
	}
	direction := directionOf(src, dst)

	var tasks []entity.TransferTask
	if !rootEntry.IsDir {
		tasks = append(tasks, taskFor(rootEntry, destinationRoot, direction))
		return tasks, nil
	}

	var walk func(srcDir, dstDir string, depth int) error
	walk = func(srcDir, dstDir string, depth int) error {
		if err := ctx.Err(); err != nil {
			return bridge.NewError(bridge.KindCancelled, srcDir, err)
		}
		listing, err := src.List(srcDir)
		if err != nil {
			return err
		}
		entity.SortEntries(listing.Entries)
		for _, e := range listing.Entries {
			if opts.excluded(e.Base()) {
				continue
			}
			destPath := joinFor(dst, dstDir, e.Base())
			switch {
			case e.IsDir:
				if !opts.Recursive {
					continue
				}
				tasks = append(tasks, taskFor(e, destPath, direction))
				if err := walk(e.Path, destPath, depth+1); err != nil {
					return err
				}
			default:
				tasks = append(tasks, taskFor(e, destPath, direction))
			}
		}
		return nil
	}

	tasks = append(tasks, entity.TransferTask{
		SourcePath:      rootEntry.Path,
		DestinationPath: destinationRoot,
		Direction:       direction,
		Kind:            entity.KindDirectory,
	})
	if err := walk(rootEntry.Path, destinationRoot, 0); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Execute runs an already-enumerated task list.
func Execute(ctx context.Context, src, dst bridge.Bridge,
	tasks []entity.TransferTask, opts Options) (*entity.TransferReport, error) {
	report := entity.NewTransferReport(len(tasks))

	var batchTotal int64
	for _, t := range tasks {
		if t.Kind == entity.KindFile {
			batchTotal += t.Size
		}
	}

	var batchBytes int64
	var fatal error
	for i, task := range tasks {
		if fatal != nil {
			reason := entity.SkipReasonSessionLost
			if bridge.IsKind(fatal, bridge.KindCancelled) {
				reason = entity.SkipReasonCancelled
			}
			report.AddSkipped(task, reason)
			continue
		}
		if err := ctx.Err(); err != nil {
			fatal = bridge.NewError(bridge.KindCancelled, task.SourcePath, err)
			report.AddSkipped(task, entity.SkipReasonCancelled)
			continue
		}

		switch task.Kind {
		case entity.KindDirectory:
			if existing, statErr := dst.Stat(task.DestinationPath); statErr == nil && existing.IsDir {
				report.AddSkipped(task, entity.SkipReasonUpToDate)
				continue
			}
			if err := dst.CreateDirectory(task.DestinationPath); err != nil {
				report.AddFailed(task, err)
				if bridge.IsKind(err, bridge.KindConnection) {
					fatal = err
				}
				continue
			}
			report.AddSuccess(task, 0)

		case entity.KindSymlink:
			// Symlinks are reported, not recreated: the bridge contract can
			// resolve them but not create them on every protocol.
			report.AddSkipped(task, entity.SkipReasonSymlink)

		default:
			skipped, reason := applyPolicy(src, dst, task, opts.Policy)
			if skipped {
				report.AddSkipped(task, reason)
				continue
			}
			written, err := copyFile(ctx, src, dst, task, opts, progressState{
				taskIndex:  i,
				taskCount:  len(tasks),
				batchBytes: batchBytes,
				batchTotal: batchTotal,
			})
			batchBytes += written
			if err != nil {
				removePartial(dst, task.DestinationPath)
				if bridge.IsKind(err, bridge.KindCancelled) {
					fatal = err
					report.AddSkipped(task, entity.SkipReasonCancelled)
					continue
				}
				report.AddFailed(task, err)
				if bridge.IsKind(err, bridge.KindConnection) {
					fatal = err
				}
				continue
			}
			report.AddSuccess(task, written)
		}
	}
	return report, fatal
}

// Remove deletes path on the given bridge.
func Remove(ctx context.Context, b bridge.Bridge, path string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return bridge.NewError(bridge.KindCancelled, path, err)
	}
	return b.Remove(path, recursive)
}

// Move transfers sourceRoot to destinationRoot and removes the source only
// after every task succeeded or was skipped as up to date.
func Move(ctx context.Context, src bridge.Bridge, sourceRoot string,
	dst bridge.Bridge, destinationRoot string, opts Options) (*entity.TransferReport, error) {
	report, err := Transfer(ctx, src, sourceRoot, dst, destinationRoot, opts)
	if err != nil {
		return report, err
	}
	if report.FailedCount > 0 {
		return report, fmt.Errorf("source kept: %d task(s) failed", report.FailedCount)
	}
	if err := src.Remove(sourceRoot, true); err != nil {
		return report, err
	}
	return report, nil
}

// Snapshot walks root and returns entries keyed by slash-separated path
// relative to root, the shape the diff module consumes.
func Snapshot(ctx context.Context, b bridge.Bridge, root string,
	exclusions set.Set[string]) (diff.Snapshot, error) {
	snapshot := make(diff.Snapshot)
	rootEntry, err := b.Stat(root)
	if err != nil {
		return nil, err
	}
	if !rootEntry.IsDir {
		return nil, bridge.NewError(bridge.KindNotFound, root,
			errors.New("snapshot root is not a directory"))
	}

	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		if err := ctx.Err(); err != nil {
			return bridge.NewError(bridge.KindCancelled, dir, err)
		}
		listing, err := b.List(dir)
		if err != nil {
			return err
		}
		for _, e := range listing.Entries {
			if exclusions != nil && exclusions.Contains(e.Base()) {
				continue
			}
			childRel := e.Base()
			if rel != "" {
				childRel = rel + "/" + e.Base()
			}
			snapshot[childRel] = e
			if e.IsDir {
				if err := walk(e.Path, childRel); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(rootEntry.Path, ""); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// applyPolicy consults both endpoints and decides whether the task may run.
// Both stats are fresh snapshots: the policy must see the trees as they are
// now, not as they were at enumeration time.
func applyPolicy(src, dst bridge.Bridge, task entity.TransferTask,
	policy entity.OverwritePolicy) (skipped bool, reason string) {
	dstEntry, err := dst.Stat(task.DestinationPath)
	if err != nil {
		// Absent destination: nothing to protect.
		return false, ""
	}
	srcEntry, err := src.Stat(task.SourcePath)
	if err != nil {
		srcEntry = entity.RemoteEntry{Path: task.SourcePath, Size: task.Size}
	}
	action, _ := diff.Decide(srcEntry, &dstEntry, policy)
	switch action {
	case entity.ActionSkip:
		if policy == entity.PolicyNever {
			return true, entity.SkipReasonPolicy
		}
		return true, entity.SkipReasonUpToDate
	case entity.ActionConflict:
		// The engine never resolves conflicts on its own.
		return true, entity.SkipReasonConflict
	default:
		return false, ""
	}
}

type progressState struct {
	taskIndex  int
	taskCount  int
	batchBytes int64
	batchTotal int64
}

// copyFile streams one file through a bounded buffer, reporting progress and
// honouring cancellation between chunks. A partially consumed stream is a
// failure; success requires both handles to close cleanly.
func copyFile(ctx context.Context, src, dst bridge.Bridge,
	task entity.TransferTask, opts Options, ps progressState) (int64, error) {
	reader, err := src.OpenRead(task.SourcePath)
	if err != nil {
		return 0, err
	}
	writer, err := dst.OpenWrite(task.DestinationPath, false)
	if err != nil {
		reader.Close()
		return 0, err
	}

	buf := make([]byte, opts.bufferSize())
	var written int64
	var sinceReport int64
	emit := func() {
		if opts.Progress != nil {
			opts.Progress(ProgressEvent{
				TaskIndex:  ps.taskIndex,
				TaskCount:  ps.taskCount,
				Path:       task.SourcePath,
				TaskBytes:  written,
				TaskTotal:  task.Size,
				BatchBytes: ps.batchBytes + written,
				BatchTotal: ps.batchTotal,
			})
		}
	}
	emit()

	var copyErr error
	for {
		// Cooperative cancellation: finish the current chunk's protocol
		// exchange, never kill it mid-frame.
		if err := ctx.Err(); err != nil {
			copyErr = bridge.NewError(bridge.KindCancelled, task.SourcePath, err)
			break
		}
		n, readErr := reader.Read(buf)
		if n > 0 {
			wn, writeErr := writer.Write(buf[:n])
			written += int64(wn)
			sinceReport += int64(wn)
			if writeErr != nil {
				copyErr = writeErr
				break
			}
			if wn != n {
				copyErr = bridge.NewError(bridge.KindIO, task.DestinationPath,
					fmt.Errorf("short write: %d of %d bytes", wn, n))
				break
			}
			if sinceReport >= opts.progressEvery() {
				sinceReport = 0
				emit()
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				copyErr = readErr
			}
			break
		}
	}

	writeCloseErr := writer.Close()
	readCloseErr := reader.Close()
	if copyErr != nil {
		return written, copyErr
	}
	if writeCloseErr != nil {
		return written, writeCloseErr
	}
	if readCloseErr != nil {
		return written, readCloseErr
	}
	emit()
	return written, nil
}

func removePartial(dst bridge.Bridge, path string) {
	// Best effort: leaving the partial file behind is acceptable, hiding it
	// from the report is not.
	_ = dst.Remove(path, false)
}

func taskFor(e entity.RemoteEntry, destPath string, direction entity.TransferDirection) entity.TransferTask {
	kind := entity.KindFile
	if e.IsDir {
		kind = entity.KindDirectory
	} else if e.IsSymlink {
		kind = entity.KindSymlink
	}
	return entity.TransferTask{
		SourcePath:      e.Path,
		DestinationPath: destPath,
		Direction:       direction,
		Size:            e.Size,
		Kind:            kind,
	}
}

func directionOf(src, dst bridge.Bridge) entity.TransferDirection {
	srcLocal := src.Protocol() == bridge.ProtocolLocal
	dstLocal := dst.Protocol() == bridge.ProtocolLocal
	switch {
	case srcLocal && dstLocal:
		return entity.DirectionLocalCopy
	case srcLocal:
		return entity.DirectionUpload
	default:
		return entity.DirectionDownload
	}
}

// joinFor joins path components with the separator conventions of the
// destination bridge. Remote protocols are POSIX; Local follows the OS.
func joinFor(dst bridge.Bridge, dir, name string) string {
	if dst.Protocol() == bridge.ProtocolLocal {
		return filepath.Join(dir, name)
	}
	return path.Join(dir, name)
}
