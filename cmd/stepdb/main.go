// Package main provides the stepdb CLI.
package main

import (
	"os"

	"github.com/steplab/stepdb/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
