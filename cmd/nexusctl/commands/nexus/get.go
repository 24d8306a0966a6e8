package nexus

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexuscore/cmd/nexusctl/cmdutil"
)

var getCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Show a Nexus instance's current state and children",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

// ChildList renders a Nexus's children as a table.
type ChildList []childRow

type childRow struct {
	URI   string
	State string
}

// Headers implements output.TableRenderer.
func (cl ChildList) Headers() []string { return []string{"URI", "STATE"} }

// Rows implements output.TableRenderer.
func (cl ChildList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		rows = append(rows, []string{c.URI, c.State})
	}
	return rows
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	n, err := client.GetNexus(args[0])
	if err != nil {
		return fmt.Errorf("get nexus %q: %w", args[0], err)
	}

	rows := make(ChildList, 0, len(n.Children))
	for _, c := range n.Children {
		rows = append(rows, childRow{URI: c.URI, State: c.State})
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format.String() != "table" {
		return cmdutil.PrintOutput(os.Stdout, n, false, "", rows)
	}

	fmt.Fprintf(os.Stdout, "name:       %s\n", n.Name)
	fmt.Fprintf(os.Stdout, "uuid:       %s\n", n.UUID)
	fmt.Fprintf(os.Stdout, "state:      %s\n", n.State)
	fmt.Fprintf(os.Stdout, "block_size: %d\n", n.BlockSize)
	fmt.Fprintf(os.Stdout, "num_blocks: %d\n", n.NumBlocks)
	fmt.Fprintf(os.Stdout, "published:  %s\n", cmdutil.EmptyOr(n.PublishedURI, "-"))
	fmt.Fprintln(os.Stdout, "children:")
	return cmdutil.PrintOutput(os.Stdout, n.Children, len(rows) == 0, "  (none)", rows)
}
