package entity

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// OutcomeStatus is the terminal state of one transfer task.
type OutcomeStatus int

const (
	StatusSuccess OutcomeStatus = iota
	StatusSkipped
	StatusFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Skip reasons used by the transfer engine. Callers inspecting a report can
// match on these instead of parsing free text.
const (
	SkipReasonCancelled   = "cancelled"
	SkipReasonUpToDate    = "up to date"
	SkipReasonPolicy      = "overwrite policy"
	SkipReasonConflict    = "conflict"
	SkipReasonSessionLost = "session lost"
	SkipReasonSymlink     = "symlink not followed"
)

// TransferOutcome is the per-task result recorded in a TransferReport.
type TransferOutcome struct {
	Task         TransferTask
	Status       OutcomeStatus
	BytesWritten int64
	Reason       string // set for StatusSkipped
	Err          error  // set for StatusFailed
}

func (o TransferOutcome) String() string {
	switch o.Status {
	case StatusSkipped:
		return fmt.Sprintf("%s: skipped (%s)", o.Task.SourcePath, o.Reason)
	case StatusFailed:
		return fmt.Sprintf("%s: failed: %v", o.Task.SourcePath, o.Err)
	default:
		return fmt.Sprintf("%s: ok (%d bytes)", o.Task.SourcePath, o.BytesWritten)
	}
}

// TransferReport is the sole authoritative record of a batch: an ordered
// outcome per enumerated task, plus aggregate counters. A report accounts for
// every task exactly once, including tasks abandoned after cancellation or a
// lost session.
type TransferReport struct {
	Outcomes []TransferOutcome

	FilesTransferred int
	DirsCreated      int
	SkippedCount     int
	FailedCount      int
	BytesWritten     int64
}

// NewTransferReport returns an empty report sized for taskCount outcomes.
func NewTransferReport(taskCount int) *TransferReport {
	return &TransferReport{Outcomes: make([]TransferOutcome, 0, taskCount)}
}

// AddSuccess records a completed task.
func (r *TransferReport) AddSuccess(task TransferTask, bytesWritten int64) {
	r.Outcomes = append(r.Outcomes, TransferOutcome{
		Task: task, Status: StatusSuccess, BytesWritten: bytesWritten,
	})
	if task.Kind == KindDirectory {
		r.DirsCreated++
	} else {
		r.FilesTransferred++
	}
	r.BytesWritten += bytesWritten
}

// AddSkipped records a task that was deliberately not performed.
func (r *TransferReport) AddSkipped(task TransferTask, reason string) {
	r.Outcomes = append(r.Outcomes, TransferOutcome{
		Task: task, Status: StatusSkipped, Reason: reason,
	})
	r.SkippedCount++
}

// AddFailed records a task that was attempted and failed.
func (r *TransferReport) AddFailed(task TransferTask, err error) {
	r.Outcomes = append(r.Outcomes, TransferOutcome{
		Task: task, Status: StatusFailed, Err: err,
	})
	r.FailedCount++
}

// Failed returns the failed outcomes, in batch order.
func (r *TransferReport) Failed() []TransferOutcome {
	failed := make([]TransferOutcome, 0, r.FailedCount)
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// Err combines all per-task failures into a single error,
// or returns nil if nothing failed.
func (r *TransferReport) Err() error {
	var combined *multierror.Error
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			combined = multierror.Append(combined,
				fmt.Errorf("%s: %w", o.Task.SourcePath, o.Err))
		}
	}
	return combined.ErrorOrNil()
}

func (r *TransferReport) String() string {
	return fmt.Sprintf("%d transferred, %d skipped, %d failed, %d bytes written",
		r.FilesTransferred, r.SkippedCount, r.FailedCount, r.BytesWritten)
}
