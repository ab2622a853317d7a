// Command featgraph runs the feature metadata registry.
package main

import (
	"os"

	"github.com/featgraph/featgraph/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
