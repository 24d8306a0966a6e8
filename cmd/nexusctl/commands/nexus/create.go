package nexus

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexuscore/cmd/nexusctl/cmdutil"
	"github.com/nexusd/nexuscore/pkg/nexusclient"
)

var (
	createBlockSize uint32
	createNumBlocks uint64
	createUUID      string
)

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new Nexus instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().Uint32Var(&createBlockSize, "block-size", 4096, "logical block size in bytes")
	createCmd.Flags().Uint64Var(&createNumBlocks, "num-blocks", 0, "number of logical blocks (required)")
	createCmd.Flags().StringVar(&createUUID, "uuid", "", "explicit Nexus UUID (generated if omitted)")
	_ = createCmd.MarkFlagRequired("num-blocks")
}

func runCreate(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	n, err := client.CreateNexus(nexusclient.CreateNexusRequest{
		Name:      args[0],
		UUID:      createUUID,
		BlockSize: createBlockSize,
		NumBlocks: createNumBlocks,
	})
	if err != nil {
		return fmt.Errorf("create nexus: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, n, false, "", NexusList{*n})
}
