// Package main is the entrypoint for auralctl, the AuralForge operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/auralforge/auralforge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
