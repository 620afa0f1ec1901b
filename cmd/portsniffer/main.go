// Command portsniffer scans the TCP ports of a single host.
package main

import (
	"os"

	"github.com/anstrom/portsniffer/cmd/cli"
)

// Build information - set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	os.Exit(cli.Execute())
}
