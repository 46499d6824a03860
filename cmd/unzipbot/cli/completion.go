package cli

import (
	"github.com/spf13/cobra"
)

// completeArchives suggests .zip files for archive arguments.
func completeArchives(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{"zip"}, cobra.ShellCompDirectiveFilterFileExt
}
