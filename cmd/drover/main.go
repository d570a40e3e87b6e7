// Package main provides the entry point for the drover CLI.
package main

import (
	"os"

	"github.com/droverdev/drover/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
