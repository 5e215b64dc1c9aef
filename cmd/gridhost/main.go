package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// Version is set during build using ldflags
var Version = "dev"

func main() {
	app := &cli.Command{
		Name:    "gridhost",
		Version: Version,
		Usage:   "Dashboard widget host: definitions, sandboxed server code, freshness cache",
		Commands: []*cli.Command{
			versionCmd,
			validateCmd,
			serverCmd,
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
