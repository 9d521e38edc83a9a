package diff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-manu/portage/entity"
)

func fileEntry(path string, size int64, modTime time.Time) entity.RemoteEntry {
	return entity.RemoteEntry{Path: path, Size: size, ModTime: modTime, ModeKnown: true}
}

func dirEntry(path string) entity.RemoteEntry {
	return entity.RemoteEntry{Path: path, IsDir: true, ModeKnown: true}
}

var epoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

func TestDecideAbsentDestination(t *testing.T) {
	action, reason := Decide(fileEntry("/src/a", 10, at(10)), nil, entity.PolicyNewerWins)
	assert.Equal(t, entity.ActionCopy, action)
	assert.Equal(t, "absent at destination", reason)
}

func TestDecideNewerWins(t *testing.T) {
	src := fileEntry("/src/a", 10, at(10))

	// Destination older: source wins
	older := fileEntry("/dst/a", 10, at(8))
	action, _ := Decide(src, &older, entity.PolicyNewerWins)
	assert.Equal(t, entity.ActionOverwrite, action)

	// Destination newer: conflict, never silently overwritten
	newer := fileEntry("/dst/a", 10, at(12))
	action, reason := Decide(src, &newer, entity.PolicyNewerWins)
	assert.Equal(t, entity.ActionConflict, action)
	assert.Equal(t, "destination is newer", reason)

	// Same second, same size: identical
	same := fileEntry("/dst/a", 10, at(10))
	action, _ = Decide(src, &same, entity.PolicyNewerWins)
	assert.Equal(t, entity.ActionSkip, action)

	// Same second, different size: overwrite
	resized := fileEntry("/dst/a", 20, at(10))
	action, reason = Decide(src, &resized, entity.PolicyNewerWins)
	assert.Equal(t, entity.ActionOverwrite, action)
	assert.Equal(t, "size differs", reason)
}

func TestDecideUnknownTimes(t *testing.T) {
	src := fileEntry("/src/a", 10, at(10))
	noTime := fileEntry("/dst/a", 11, time.Time{})
	action, reason := Decide(src, &noTime, entity.PolicyNewerWins)
	assert.Equal(t, entity.ActionConflict, action)
	assert.Equal(t, "modification time unknown", reason)
}

func TestDecidePolicies(t *testing.T) {
	src := fileEntry("/src/a", 10, at(10))
	newer := fileEntry("/dst/a", 11, at(12))

	action, _ := Decide(src, &newer, entity.PolicyAlways)
	assert.Equal(t, entity.ActionOverwrite, action)

	action, _ = Decide(src, &newer, entity.PolicyNever)
	assert.Equal(t, entity.ActionSkip, action)

	action, _ = Decide(src, &newer, entity.PolicyPromptOnConflict)
	assert.Equal(t, entity.ActionConflict, action)
}

func TestDecideIdenticalBeatsPolicy(t *testing.T) {
	// An identical pair is a skip under every policy, including Always.
	src := fileEntry("/src/a", 10, at(10))
	same := fileEntry("/dst/a", 10, at(10))
	action, reason := Decide(src, &same, entity.PolicyAlways)
	assert.Equal(t, entity.ActionSkip, action)
	assert.Equal(t, "identical", reason)
}

func TestDecideDirectories(t *testing.T) {
	srcDir := dirEntry("/src/d")

	dstDir := dirEntry("/dst/d")
	action, _ := Decide(srcDir, &dstDir, entity.PolicyNewerWins)
	assert.Equal(t, entity.ActionSkip, action)

	dstFile := fileEntry("/dst/d", 5, at(1))
	action, reason := Decide(srcDir, &dstFile, entity.PolicyNewerWins)
	assert.Equal(t, entity.ActionConflict, action)
	assert.Equal(t, "directory replaces file", reason)

	action, _ = Decide(srcDir, nil, entity.PolicyNewerWins)
	assert.Equal(t, entity.ActionCopy, action)
}

func TestDecideFileReplacesDirectory(t *testing.T) {
	// The asymmetric case: a plain file at source where the destination has
	// a directory. No policy may auto-overwrite a directory with a file.
	srcFile := fileEntry("/src/d", 5, at(10))
	dstDir := dirEntry("/dst/d")
	for _, policy := range []entity.OverwritePolicy{
		entity.PolicyNewerWins, entity.PolicyAlways,
		entity.PolicyNever, entity.PolicyPromptOnConflict,
	} {
		action, reason := Decide(srcFile, &dstDir, policy)
		assert.Equal(t, entity.ActionConflict, action, "policy %v", policy)
		assert.Equal(t, "file replaces directory", reason)
	}
}

func TestDecisionsOrderingAndTasks(t *testing.T) {
	source := Snapshot{
		"b.txt":     fileEntry("/src/b.txt", 3, at(5)),
		"a/one.txt": fileEntry("/src/a/one.txt", 1, at(5)),
		"a":         dirEntry("/src/a"),
	}
	destination := Snapshot{
		"b.txt": fileEntry("/dst/b.txt", 3, at(5)),
	}

	decisions := Decisions(source, destination, entity.DirectionUpload, entity.PolicyNewerWins)
	require.Len(t, decisions, 3)
	assert.Equal(t, "a", decisions[0].Task.DestinationPath)
	assert.Equal(t, "a/one.txt", decisions[1].Task.DestinationPath)
	assert.Equal(t, "b.txt", decisions[2].Task.DestinationPath)

	assert.Equal(t, entity.ActionCopy, decisions[0].Action)
	assert.Equal(t, entity.KindDirectory, decisions[0].Task.Kind)
	assert.Equal(t, entity.ActionCopy, decisions[1].Action)
	assert.Equal(t, entity.ActionSkip, decisions[2].Action)
	for _, d := range decisions {
		assert.Equal(t, entity.DirectionUpload, d.Task.Direction)
	}
}

func TestResolveConflicts(t *testing.T) {
	decisions := []entity.SyncDecision{
		{Task: entity.TransferTask{DestinationPath: "x"}, Action: entity.ActionConflict},
		{Task: entity.TransferTask{DestinationPath: "y"}, Action: entity.ActionCopy},
	}
	resolved := ResolveConflicts(decisions, func(d entity.SyncDecision) entity.SyncAction {
		return entity.ActionOverwrite
	})
	assert.Equal(t, entity.ActionOverwrite, resolved[0].Action)
	assert.Equal(t, entity.ActionCopy, resolved[1].Action)
	// Original slice untouched
	assert.Equal(t, entity.ActionConflict, decisions[0].Action)
}

func TestPendingAndConflicts(t *testing.T) {
	decisions := []entity.SyncDecision{
		{Action: entity.ActionCopy},
		{Action: entity.ActionOverwrite},
		{Action: entity.ActionSkip},
		{Action: entity.ActionConflict},
	}
	assert.Len(t, Pending(decisions), 2)
	assert.Len(t, Conflicts(decisions), 1)
}
