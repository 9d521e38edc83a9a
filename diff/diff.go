// Package diff reconciles two directory snapshots into per-path sync
// decisions. It never performs I/O and never auto-resolves a conflict:
// a destination that is newer than the source is reported as Conflict and
// left to the caller's policy.
package diff

import (
	"sort"

	set "github.com/deckarep/golang-set/v2"

	"github.com/m-manu/portage/entity"
)

// Snapshot is one side of a comparison: entries keyed by path relative to
// the tree root.
type Snapshot map[string]entity.RemoteEntry

// Decisions compares every path present at source against destination and
// returns one decision per source path, ordered by relative path. Directories
// never conflict: they are copied when absent and skipped when present.
func Decisions(source, destination Snapshot, direction entity.TransferDirection,
	policy entity.OverwritePolicy) []entity.SyncDecision {
	sourcePaths := set.NewThreadUnsafeSetWithSize[string](len(source))
	for relPath := range source {
		sourcePaths.Add(relPath)
	}
	ordered := sourcePaths.ToSlice()
	sort.Strings(ordered)

	decisions := make([]entity.SyncDecision, 0, len(ordered))
	for _, relPath := range ordered {
		srcEntry := source[relPath]
		task := entity.TransferTask{
			SourcePath:      srcEntry.Path,
			DestinationPath: relPath,
			Direction:       direction,
			Size:            srcEntry.Size,
			Kind:            kindOf(srcEntry),
		}
		dstEntry, exists := destination[relPath]
		var action entity.SyncAction
		var reason string
		if exists {
			action, reason = Decide(srcEntry, &dstEntry, policy)
		} else {
			action, reason = Decide(srcEntry, nil, policy)
		}
		decisions = append(decisions, entity.SyncDecision{Task: task, Action: action, Reason: reason})
	}
	return decisions
}

// Decide chooses the action for a single source entry given the matching
// destination entry (nil when absent).
func Decide(src entity.RemoteEntry, dst *entity.RemoteEntry,
	policy entity.OverwritePolicy) (entity.SyncAction, string) {
	if dst == nil {
		return entity.ActionCopy, "absent at destination"
	}
	if src.IsDir {
		if dst.IsDir {
			return entity.ActionSkip, "directory exists"
		}
		return entity.ActionConflict, "directory replaces file"
	}
	if dst.IsDir {
		return entity.ActionConflict, "file replaces directory"
	}
	if identical(src, *dst) {
		return entity.ActionSkip, "identical"
	}

	switch policy {
	case entity.PolicyAlways:
		return entity.ActionOverwrite, "policy always"
	case entity.PolicyNever:
		return entity.ActionSkip, "policy never"
	case entity.PolicyPromptOnConflict:
		return entity.ActionConflict, "destination differs"
	default: // PolicyNewerWins
		// Without both timestamps there is no safe ordering to lean on.
		if src.ModTime.IsZero() || dst.ModTime.IsZero() {
			return entity.ActionConflict, "modification time unknown"
		}
		if dst.ModTime.After(src.ModTime) {
			return entity.ActionConflict, "destination is newer"
		}
		if src.ModTime.After(dst.ModTime) {
			return entity.ActionOverwrite, "source is newer"
		}
		// Same second, different size.
		return entity.ActionOverwrite, "size differs"
	}
}

// ResolveConflicts rewrites Conflict decisions using the caller's verdicts.
// resolve receives each conflicted decision and returns the action to take
// in its place (Overwrite or Skip).
func ResolveConflicts(decisions []entity.SyncDecision,
	resolve func(entity.SyncDecision) entity.SyncAction) []entity.SyncDecision {
	resolved := make([]entity.SyncDecision, len(decisions))
	for i, d := range decisions {
		if d.Action == entity.ActionConflict && resolve != nil {
			d.Action = resolve(d)
			d.Reason = "conflict resolved by caller"
		}
		resolved[i] = d
	}
	return resolved
}

// Pending returns the decisions that require a transfer (Copy or Overwrite).
func Pending(decisions []entity.SyncDecision) []entity.SyncDecision {
	pending := make([]entity.SyncDecision, 0, len(decisions))
	for _, d := range decisions {
		if d.Action == entity.ActionCopy || d.Action == entity.ActionOverwrite {
			pending = append(pending, d)
		}
	}
	return pending
}

// Conflicts returns the unresolved conflict decisions.
func Conflicts(decisions []entity.SyncDecision) []entity.SyncDecision {
	conflicts := make([]entity.SyncDecision, 0)
	for _, d := range decisions {
		if d.Action == entity.ActionConflict {
			conflicts = append(conflicts, d)
		}
	}
	return conflicts
}

// identical means same type, same size, same modification time to the
// second (FTP and ls-based listings don't carry sub-second precision).
func identical(a, b entity.RemoteEntry) bool {
	if a.IsDir != b.IsDir {
		return false
	}
	if a.Size != b.Size {
		return false
	}
	if a.ModTime.IsZero() || b.ModTime.IsZero() {
		return false
	}
	return a.ModTime.Unix() == b.ModTime.Unix()
}

func kindOf(e entity.RemoteEntry) entity.EntryKind {
	switch {
	case e.IsDir:
		return entity.KindDirectory
	case e.IsSymlink:
		return entity.KindSymlink
	default:
		return entity.KindFile
	}
}
