package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/vertextoedge/dlhelper/internal/request"
)

const version = "0.1.0"

func main() {
	request.Version = version

	app := &cli.App{
		Name:    "dlhelper",
		Usage:   "resumable HTTP downloader",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{"DLHELPER_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			getCommand(),
			sizeCommand(),
			pendingCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dlhelper: %v\n", err)
		os.Exit(1)
	}
}
