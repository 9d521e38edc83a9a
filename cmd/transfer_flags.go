package cmd

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	set "github.com/deckarep/golang-set/v2"
	"github.com/spf13/cobra"

	"github.com/m-manu/portage/entity"
	"github.com/m-manu/portage/filesutil"
)

//go:embed default_exclusions.txt
var defaultExclusionsStr string

func addTransferFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("recursive", "r", false, "descend into directories")
	addPolicyFlags(cmd)
}

func addPolicyFlags(cmd *cobra.Command) {
	cmd.Flags().String("policy", "newer-wins", "overwrite policy: newer-wins, always, never or prompt")
	cmd.Flags().String("exclusions", "",
		"path to file containing newline separated list of file/directory names to be excluded\n"+
			"(if this is not set, common junk files like .DS_Store and Thumbs.db are excluded)")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")
}

func policyFromFlags(cmd *cobra.Command) (entity.OverwritePolicy, error) {
	name, _ := cmd.Flags().GetString("policy")
	return entity.ParseOverwritePolicy(name)
}

func exclusionsFromFlags(cmd *cobra.Command) (set.Set[string], error) {
	path, _ := cmd.Flags().GetString("exclusions")
	if path == "" {
		return lineSeparatedToSet(defaultExclusionsStr), nil
	}
	if !filesutil.IsReadableFile(path) {
		return nil, fmt.Errorf("exclusions path %q is not a readable file", path)
	}
	rawContents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("exclusions file isn't readable: %w", err)
	}
	contents := strings.ReplaceAll(string(rawContents), "\r\n", "\n") // Windows
	return lineSeparatedToSet(contents), nil
}

func lineSeparatedToSet(contents string) set.Set[string] {
	exclusions := set.NewThreadUnsafeSet[string]()
	for _, line := range strings.Split(contents, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		exclusions.Add(trimmed)
	}
	return exclusions
}
