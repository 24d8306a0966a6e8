package nexus

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexuscore/cmd/nexusctl/cmdutil"
	"github.com/nexusd/nexuscore/pkg/nexusclient"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Manage rebuild jobs for a Nexus instance",
}

var rebuildStartCmd = &cobra.Command{
	Use:   "start NAME SOURCE_URI DESTINATION_URI",
	Short: "Start a rebuild job copying SOURCE_URI's data onto DESTINATION_URI",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}
		job, err := client.StartRebuild(args[0], args[1], args[2])
		if err != nil {
			return fmt.Errorf("start rebuild: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, job, false, "", RebuildJobList{*job})
	},
}

var rebuildStopCmd = &cobra.Command{
	Use:   "stop NAME DESTINATION_URI",
	Short: "Cancel the in-progress rebuild job targeting DESTINATION_URI",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}
		if err := client.StopRebuild(args[0], args[1]); err != nil {
			return fmt.Errorf("stop rebuild: %w", err)
		}
		fmt.Printf("rebuild job for %s stopped\n", args[1])
		return nil
	},
}

var rebuildProgressCmd = &cobra.Command{
	Use:   "progress NAME DESTINATION_URI",
	Short: "Show the current cursor and state of the rebuild job targeting DESTINATION_URI",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}
		job, err := client.RebuildProgress(args[0], args[1])
		if err != nil {
			return fmt.Errorf("get rebuild progress: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, job, false, "", RebuildJobList{*job})
	},
}

func init() {
	rebuildCmd.AddCommand(rebuildStartCmd)
	rebuildCmd.AddCommand(rebuildStopCmd)
	rebuildCmd.AddCommand(rebuildProgressCmd)
}

// RebuildJobList renders a slice of rebuild jobs as a table.
type RebuildJobList []nexusclient.RebuildJob

// Headers implements output.TableRenderer.
func (rl RebuildJobList) Headers() []string {
	return []string{"ID", "SOURCE", "DESTINATION", "STATE", "PROGRESS", "ERROR"}
}

// Rows implements output.TableRenderer.
func (rl RebuildJobList) Rows() [][]string {
	rows := make([][]string, 0, len(rl))
	for _, j := range rl {
		rows = append(rows, []string{
			j.ID,
			j.SourceURI,
			j.DestinationURI,
			j.State,
			fmt.Sprintf("%.1f%%", j.ProgressPct),
			cmdutil.EmptyOr(j.Error, "-"),
		})
	}
	return rows
}
