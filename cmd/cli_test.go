package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	// Flag values stick between Execute calls on a shared command tree.
	defer resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().Visit(reset)
	cmd.PersistentFlags().Visit(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	backRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcRoot, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "docs", "guide.md"), []byte("# Guide"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "readme.txt"), []byte("hello"), 0o644))

	copied := filepath.Join(dstRoot, "copy")
	err := runCLI(t, "put", srcRoot, copied, "--recursive", "--no-progress")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(copied, "readme.txt"))
	assert.FileExists(t, filepath.Join(copied, "docs", "guide.md"))

	returned := filepath.Join(backRoot, "returned")
	err = runCLI(t, "get", copied, returned, "--recursive", "--no-progress")
	require.NoError(t, err)
	data, readErr := os.ReadFile(filepath.Join(returned, "docs", "guide.md"))
	require.NoError(t, readErr)
	assert.Equal(t, "# Guide", string(data))
}

func TestRmCommand(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "deep", "file"), []byte("x"), 0o644))

	err := runCLI(t, "rm", target, "--recursive")
	require.NoError(t, err)
	assert.NoDirExists(t, target)
}

func TestSyncDryRunChangesNothing(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "new.txt"), []byte("new"), 0o644))

	err := runCLI(t, "sync", srcRoot, dstRoot, "--dry-run", "--no-progress")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dstRoot, "new.txt"))
}

func TestSyncCopiesMissingFiles(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "new.txt"), []byte("new"), 0o644))

	err := runCLI(t, "sync", srcRoot, dstRoot, "--no-progress")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dstRoot, "new.txt"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, ExitCode(assert.AnError))
}
