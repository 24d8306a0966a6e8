package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print nexusctl version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("nexusctl %s (commit %s, built %s)\n", Version, Commit, Date)
		return nil
	},
}
