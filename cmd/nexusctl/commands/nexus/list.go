package nexus

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nexusd/nexuscore/cmd/nexusctl/cmdutil"
	"github.com/nexusd/nexuscore/pkg/nexusclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List Nexus instances",
	RunE:  runList,
}

// NexusList renders a slice of nexusclient.Nexus as a table.
type NexusList []nexusclient.Nexus

// Headers implements output.TableRenderer.
func (nl NexusList) Headers() []string {
	return []string{"NAME", "UUID", "STATE", "CAPACITY", "CHILDREN"}
}

// Rows implements output.TableRenderer.
func (nl NexusList) Rows() [][]string {
	rows := make([][]string, 0, len(nl))
	for _, n := range nl {
		capacity := humanize.IBytes(uint64(n.BlockSize) * n.NumBlocks)
		rows = append(rows, []string{
			n.Name,
			n.UUID,
			n.State,
			capacity,
			strconv.Itoa(len(n.Children)),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	nexuses, err := client.ListNexus()
	if err != nil {
		return fmt.Errorf("list nexus instances: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, nexuses, len(nexuses) == 0, "No Nexus instances.", NexusList(nexuses))
}
