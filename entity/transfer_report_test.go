package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferReportAccounting(t *testing.T) {
	report := NewTransferReport(4)
	dirTask := TransferTask{SourcePath: "/src/d", DestinationPath: "/dst/d", Kind: KindDirectory}
	fileTask := TransferTask{SourcePath: "/src/f", DestinationPath: "/dst/f", Kind: KindFile, Size: 100}

	report.AddSuccess(dirTask, 0)
	report.AddSuccess(fileTask, 100)
	report.AddSkipped(TransferTask{SourcePath: "/src/s"}, SkipReasonUpToDate)
	report.AddFailed(TransferTask{SourcePath: "/src/x"}, errors.New("boom"))

	assert.Equal(t, 1, report.DirsCreated)
	assert.Equal(t, 1, report.FilesTransferred)
	assert.Equal(t, 1, report.SkippedCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.Equal(t, int64(100), report.BytesWritten)
	assert.Len(t, report.Outcomes, 4)
}

func TestTransferReportFailed(t *testing.T) {
	report := NewTransferReport(3)
	report.AddSuccess(TransferTask{SourcePath: "/src/ok"}, 1)
	report.AddFailed(TransferTask{SourcePath: "/src/bad1"}, errors.New("first"))
	report.AddFailed(TransferTask{SourcePath: "/src/bad2"}, errors.New("second"))

	failed := report.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "/src/bad1", failed[0].Task.SourcePath)
	assert.Equal(t, "/src/bad2", failed[1].Task.SourcePath)

	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}

func TestTransferReportErrNilWhenClean(t *testing.T) {
	report := NewTransferReport(1)
	report.AddSuccess(TransferTask{SourcePath: "/src/ok"}, 1)
	assert.NoError(t, report.Err())
}

func TestOutcomeString(t *testing.T) {
	skipped := TransferOutcome{
		Task:   TransferTask{SourcePath: "/src/a"},
		Status: StatusSkipped,
		Reason: SkipReasonCancelled,
	}
	assert.Equal(t, "/src/a: skipped (cancelled)", skipped.String())
}
