package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-manu/portage/entity"
)

func TestDefaultExclusions(t *testing.T) {
	cmd := &cobra.Command{}
	addTransferFlags(cmd)
	exclusions, err := exclusionsFromFlags(cmd)
	require.NoError(t, err)
	assert.True(t, exclusions.Contains(".DS_Store"))
	assert.True(t, exclusions.Contains("Thumbs.db"))
	assert.False(t, exclusions.Contains("regular-file.txt"))
}

func TestExclusionsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclusions.txt")
	require.NoError(t, os.WriteFile(path, []byte("node_modules\r\n# a comment\n\n.cache\n"), 0o644))

	cmd := &cobra.Command{}
	addTransferFlags(cmd)
	require.NoError(t, cmd.Flags().Set("exclusions", path))

	exclusions, err := exclusionsFromFlags(cmd)
	require.NoError(t, err)
	assert.True(t, exclusions.Contains("node_modules"))
	assert.True(t, exclusions.Contains(".cache"))
	assert.False(t, exclusions.Contains("# a comment"))
	assert.False(t, exclusions.Contains(""))
}

func TestExclusionsFileMustExist(t *testing.T) {
	cmd := &cobra.Command{}
	addTransferFlags(cmd)
	require.NoError(t, cmd.Flags().Set("exclusions", filepath.Join(t.TempDir(), "absent.txt")))
	_, err := exclusionsFromFlags(cmd)
	assert.Error(t, err)
}

func TestPolicyFromFlags(t *testing.T) {
	cmd := &cobra.Command{}
	addTransferFlags(cmd)
	policy, err := policyFromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, entity.PolicyNewerWins, policy)

	require.NoError(t, cmd.Flags().Set("policy", "always"))
	policy, err = policyFromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, entity.PolicyAlways, policy)

	require.NoError(t, cmd.Flags().Set("policy", "sometimes"))
	_, err = policyFromFlags(cmd)
	assert.Error(t, err)
}
