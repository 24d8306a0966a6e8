package commands

import "testing"

func TestRootCmd_RegistersNexusCommand(t *testing.T) {
	for _, c := range rootCmd.Commands() {
		if c.Name() == "nexus" {
			return
		}
	}
	t.Fatal("expected rootCmd to register the nexus command group")
}
