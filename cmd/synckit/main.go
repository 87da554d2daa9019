// Command synckit is the offline-first sync client for the alert
// monitoring backend.
package main

import (
	"os"

	"github.com/sams-labs/synckit/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
