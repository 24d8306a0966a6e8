// Command nexusd runs the Nexus storage-virtualization daemon.
package main

import (
	"fmt"
	"os"

	"github.com/nexusd/nexuscore/cmd/nexusd/commands"

	// Blank-imported so each backend's init() registers itself with
	// child.DefaultRegistry; nothing else in the daemon references these
	// packages directly.
	_ "github.com/nexusd/nexuscore/pkg/child/aio"
	_ "github.com/nexusd/nexuscore/pkg/child/iscsi"
	_ "github.com/nexusd/nexuscore/pkg/child/nvmf"
	_ "github.com/nexusd/nexuscore/pkg/child/pcie"
	_ "github.com/nexusd/nexuscore/pkg/child/uring"
)

// Build-time version information, set via -ldflags.
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
