package nexus

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexuscore/cmd/nexusctl/cmdutil"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy NAME",
	Short: "Destroy a Nexus instance",
	Long: `Destroy tears down a Nexus instance. A published Nexus is
unpublished first.`,
	Args: cobra.ExactArgs(1),
	RunE: runDestroy,
}

func runDestroy(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	if err := client.DestroyNexus(args[0]); err != nil {
		return fmt.Errorf("destroy nexus %q: %w", args[0], err)
	}

	fmt.Printf("nexus %q destroyed\n", args[0])
	return nil
}
