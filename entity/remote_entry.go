package entity

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"
)

// RemoteEntry is a protocol-agnostic snapshot of one file, directory or
// symlink, as reported by a host bridge at listing/stat time. Instances are
// immutable and never cached across calls: staleness is bounded by how often
// the caller lists, never assumed away.
type RemoteEntry struct {
	Name          string
	Path          string // absolute path on the host the entry came from
	IsDir         bool
	IsSymlink     bool
	SymlinkTarget string // empty unless IsSymlink and the target is known
	Size          int64
	// Mode holds unix permission bits. ModeKnown is false when the protocol
	// could not supply them (common on FTP servers); callers must treat that
	// as unknown, not as 0000.
	Mode      fs.FileMode
	ModeKnown bool
	// ModTime is the modification time. A zero value means the protocol did
	// not expose it.
	ModTime time.Time
	// UID and GID are nil when ownership is not known.
	UID *uint32
	GID *uint32
}

func (e RemoteEntry) String() string {
	kind := "file"
	if e.IsDir {
		kind = "dir"
	} else if e.IsSymlink {
		kind = "symlink"
	}
	return fmt.Sprintf("{%s %s size=%d}", kind, e.Path, e.Size)
}

// Base returns the entry name, falling back to the path's base component.
func (e RemoteEntry) Base() string {
	if e.Name != "" {
		return e.Name
	}
	return path.Base(e.Path)
}

// Equal reports whether two entries refer to the same path.
// Entries are identified by path alone; metadata may differ across snapshots.
func (e RemoteEntry) Equal(other RemoteEntry) bool {
	return e.Path == other.Path
}

// Less orders entries by path.
func (e RemoteEntry) Less(other RemoteEntry) bool {
	return e.Path < other.Path
}

// SortEntries sorts entries in place: directories first, then by name.
// This is the presentation order used for listings.
func SortEntries(entries []RemoteEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
}
