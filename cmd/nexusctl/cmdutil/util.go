// Package cmdutil provides shared utilities for nexusctl commands.
package cmdutil

import (
	"fmt"
	"io"
	"os"

	"github.com/nexusd/nexuscore/internal/cliutil/output"
	"github.com/nexusd/nexuscore/pkg/nexusclient"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL string
	Token     string
	Output    string
	NoColor   bool
}

// GetClient returns a nexusclient.Client configured from the global flags.
// nexusd verifies tokens issued by an external control plane; nexusctl
// never mints them, it only forwards --token.
func GetClient() (*nexusclient.Client, error) {
	if Flags.ServerURL == "" {
		return nil, fmt.Errorf("no server URL configured, pass --server")
	}
	c := nexusclient.New(Flags.ServerURL)
	if Flags.Token != "" {
		c = c.WithToken(Flags.Token)
	}
	return c, nil
}

// GetOutputFormatParsed returns the parsed output format from --output.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the configured format. For table format,
// emptyMsg is shown instead of an empty table when isEmpty is true.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintErr prints err to stderr, in red unless --no-color was set.
func PrintErr(err error) {
	output.NewPrinter(os.Stderr, output.FormatTable, !Flags.NoColor).Error(err.Error())
}

// EmptyOr returns value if non-empty, otherwise fallback. Useful for table
// columns where an empty field should render as "-".
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
