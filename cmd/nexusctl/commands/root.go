// Package commands implements the nexusctl CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/nexusd/nexuscore/cmd/nexusctl/cmdutil"
	"github.com/nexusd/nexuscore/cmd/nexusctl/commands/nexus"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "nexusctl",
	Short: "Control client for nexusd",
	Long: `nexusctl is a thin REST client for nexusd's control-plane RPC
surface: create and destroy Nexus instances, manage their children, publish
them over nvmf/iscsi/local, and drive rebuilds.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cmdutil.Flags.ServerURL, "server", "http://127.0.0.1:8420", "nexusd RPC listen address")
	rootCmd.PersistentFlags().StringVar(&cmdutil.Flags.Token, "token", "", "bearer token for nexusd's RPC surface")
	rootCmd.PersistentFlags().StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(nexus.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
