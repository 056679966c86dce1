package main

import (
	"context"
	"os"

	"airtable-mcp-go/internal/cmd"
)

// Set by -ldflags at build time.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
