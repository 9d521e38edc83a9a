package entity

import "fmt"

// TransferDirection says which way the bytes of a task flow.
type TransferDirection int

const (
	DirectionUpload TransferDirection = iota
	DirectionDownload
	DirectionLocalCopy
)

func (d TransferDirection) String() string {
	switch d {
	case DirectionUpload:
		return "upload"
	case DirectionDownload:
		return "download"
	case DirectionLocalCopy:
		return "local copy"
	default:
		return "unknown"
	}
}

// EntryKind classifies a transfer task.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
	KindSymlink
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// TransferTask is one unit of work in a batch: a single file, directory or
// symlink to be carried from SourcePath to DestinationPath. Tasks are
// produced by enumeration and immutable once queued.
type TransferTask struct {
	SourcePath      string
	DestinationPath string
	Direction       TransferDirection
	Size            int64
	Kind            EntryKind
}

func (t TransferTask) String() string {
	return fmt.Sprintf("%s %s -> %s (%s, %d bytes)",
		t.Direction, t.SourcePath, t.DestinationPath, t.Kind, t.Size)
}
