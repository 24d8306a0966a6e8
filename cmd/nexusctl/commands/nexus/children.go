package nexus

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexuscore/cmd/nexusctl/cmdutil"
)

var childrenCmd = &cobra.Command{
	Use:   "children",
	Short: "Manage a Nexus instance's children",
}

var childrenAddCmd = &cobra.Command{
	Use:   "add NAME URI",
	Short: "Add a child to a Nexus instance",
	Long: `Add a child to a Nexus instance. URI identifies the child's
storage backend, e.g. aio:///var/lib/nexus/mynexus/child1.img,
nvmf://host:4420/nqn.2024-01.io.nexus:child1, or
iscsi://host:3260/iqn.2024-01.io.nexus:child1.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}
		n, err := client.AddChild(args[0], args[1])
		if err != nil {
			return fmt.Errorf("add child: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, n, false, "", NexusList{*n})
	},
}

var childrenRemoveCmd = &cobra.Command{
	Use:   "remove NAME URI",
	Short: "Remove a child from a Nexus instance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}
		n, err := client.RemoveChild(args[0], args[1])
		if err != nil {
			return fmt.Errorf("remove child: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, n, false, "", NexusList{*n})
	},
}

var childrenOfflineCmd = &cobra.Command{
	Use:   "offline NAME URI",
	Short: "Take a child offline without removing it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}
		n, err := client.OfflineChild(args[0], args[1])
		if err != nil {
			return fmt.Errorf("offline child: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, n, false, "", NexusList{*n})
	},
}

var childrenOnlineCmd = &cobra.Command{
	Use:   "online NAME URI",
	Short: "Bring an offline child back online, starting a rebuild",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}
		n, err := client.OnlineChild(args[0], args[1])
		if err != nil {
			return fmt.Errorf("online child: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, n, false, "", NexusList{*n})
	},
}

func init() {
	childrenCmd.AddCommand(childrenAddCmd)
	childrenCmd.AddCommand(childrenRemoveCmd)
	childrenCmd.AddCommand(childrenOfflineCmd)
	childrenCmd.AddCommand(childrenOnlineCmd)
}
