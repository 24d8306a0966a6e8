// Command nexusctl is a REST client for nexusd's control-plane RPC surface.
package main

import (
	"fmt"
	"os"

	"github.com/nexusd/nexuscore/cmd/nexusctl/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
