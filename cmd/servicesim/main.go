// servicesim serves simulated HTTP services from a directory of call
// definitions.
package main

import (
	"os"

	"servicesim/internal/config"
)

// Build-time variables set via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := newRootCommand(config.NewViper()).Execute(); err != nil {
		os.Exit(1)
	}
}
