// Package main provides the entry point for the Penguin CLI.
package main

import (
	"fmt"
	"os"

	"github.com/penguin-run/penguin/cmd/penguin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
