// Package main provides the CLI for LeapDoc document generation.
package main

import (
	"os"

	"github.com/leapstack-labs/leapdoc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
