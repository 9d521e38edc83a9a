package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoteEntryBase(t *testing.T) {
	named := RemoteEntry{Name: "a.txt", Path: "/srv/a.txt"}
	assert.Equal(t, "a.txt", named.Base())

	unnamed := RemoteEntry{Path: "/srv/sub/b.txt"}
	assert.Equal(t, "b.txt", unnamed.Base())
}

func TestSortEntriesDirectoriesFirst(t *testing.T) {
	entries := []RemoteEntry{
		{Name: "zebra.txt", Path: "/srv/zebra.txt"},
		{Name: "alpha", Path: "/srv/alpha", IsDir: true},
		{Name: "beta.txt", Path: "/srv/beta.txt"},
		{Name: "omega", Path: "/srv/omega", IsDir: true},
	}
	SortEntries(entries)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, "omega", entries[1].Name)
	assert.Equal(t, "beta.txt", entries[2].Name)
	assert.Equal(t, "zebra.txt", entries[3].Name)
}

func TestParseOverwritePolicy(t *testing.T) {
	for input, want := range map[string]OverwritePolicy{
		"newer-wins": PolicyNewerWins,
		"newer":      PolicyNewerWins,
		"always":     PolicyAlways,
		"never":      PolicyNever,
		"prompt":     PolicyPromptOnConflict,
	} {
		got, err := ParseOverwritePolicy(input)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseOverwritePolicy("maybe")
	assert.Error(t, err)
}
