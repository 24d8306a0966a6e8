package nexus

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexuscore/cmd/nexusctl/cmdutil"
	"github.com/nexusd/nexuscore/pkg/nexusclient"
)

var eventsCmd = &cobra.Command{
	Use:   "events NAME",
	Short: "Stream a Nexus instance's notification feed until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = client.Events(ctx, args[0], func(ev nexusclient.Event) {
		if ev.ChildURI != "" {
			fmt.Fprintf(os.Stdout, "%s %s %s: %s\n", ev.Nexus, ev.Kind, ev.ChildURI, ev.Message)
		} else {
			fmt.Fprintf(os.Stdout, "%s %s: %s\n", ev.Nexus, ev.Kind, ev.Message)
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream events: %w", err)
	}
	return nil
}
