package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if outputJSON {
			printJSON(map[string]string{
				"version": versionInfo.Version,
				"commit":  versionInfo.Commit,
				"date":    versionInfo.Date,
			})
			return
		}
		fmt.Printf("gavel %s\n", versionInfo.Version)
		if versionInfo.Commit != "" {
			fmt.Printf("  commit: %s\n", versionInfo.Commit)
		}
		if versionInfo.Date != "" {
			fmt.Printf("  built:  %s\n", versionInfo.Date)
		}
	},
}
