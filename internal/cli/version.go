package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrybe-cli/scrybe/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		bi := buildinfo.Current()
		fmt.Printf("scrybe %s (commit %s, built %s)\n", bi.Version, bi.CommitHash, bi.BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
