package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/pomelo-lab/appkit/pkg/utils"
)

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cachectl version: %s\n", utils.Version)
		fmt.Printf("  git commit: %s\n", utils.Commit)
		fmt.Printf("  build time: %s\n", utils.BuildTime)
		fmt.Printf("  go version: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
