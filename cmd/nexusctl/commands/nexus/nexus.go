// Package nexus implements nexusctl's "nexus" command group: create,
// list, inspect, and destroy Nexus instances, manage their children,
// publish them, and drive rebuilds.
package nexus

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for Nexus instance management.
var Cmd = &cobra.Command{
	Use:   "nexus",
	Short: "Manage Nexus instances",
	Long: `Create, inspect, and destroy Nexus instances, and manage their
children, publications, and rebuilds.

Examples:
  # Create a 10GiB Nexus
  nexusctl nexus create mynexus --block-size 4096 --num-blocks 2621440

  # List all Nexus instances
  nexusctl nexus list

  # Add a child
  nexusctl nexus children add mynexus aio:///var/lib/nexus/mynexus/child0.img`,
}

func init() {
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(destroyCmd)
	Cmd.AddCommand(childrenCmd)
	Cmd.AddCommand(publishCmd)
	Cmd.AddCommand(unpublishCmd)
	Cmd.AddCommand(rebuildCmd)
	Cmd.AddCommand(eventsCmd)
}
