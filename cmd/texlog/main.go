package main

import (
	"fmt"
	"os"

	"github.com/lucasnoah/texlog/internal/cli"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cli.SetVersion(Version)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "texlog:", err)
		os.Exit(1)
	}
}
