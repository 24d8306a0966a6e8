package nexus

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexuscore/cmd/nexusctl/cmdutil"
)

var (
	publishProtocol string
	publishACL      string
)

var publishCmd = &cobra.Command{
	Use:   "publish NAME",
	Short: "Publish a Nexus instance over nvmf, iscsi, or local",
	Long: `Publish exposes a Nexus instance's block device over the given
transport protocol. Only one publication may be active per Nexus at a
time; republishing requires an explicit unpublish first.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

var unpublishCmd = &cobra.Command{
	Use:   "unpublish NAME",
	Short: "Tear down a Nexus instance's active publication",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnpublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishProtocol, "protocol", "nvmf", "transport protocol: nvmf, iscsi, local")
	publishCmd.Flags().StringVar(&publishACL, "acl", "", "initiator ACL restricting access to the published target")
}

func runPublish(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	res, err := client.PublishNexus(args[0], publishProtocol, publishACL)
	if err != nil {
		return fmt.Errorf("publish nexus %q: %w", args[0], err)
	}

	fmt.Printf("published %s at %s (%s)\n", args[0], res.Endpoint, res.Protocol)
	return nil
}

func runUnpublish(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	if err := client.UnpublishNexus(args[0]); err != nil {
		return fmt.Errorf("unpublish nexus %q: %w", args[0], err)
	}

	fmt.Printf("unpublished %s\n", args[0])
	return nil
}
