// Package cli provides the command-line interface for hybrid-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config.yaml (default: <home>/config.yaml)",
		EnvVars: []string{"HYBRID_CONFIG"},
	},
	&cli.StringSliceFlag{
		Name:  "env-file",
		Usage: "Dotenv files to load before reading the environment",
		Value: cli.NewStringSlice(".env"),
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"HYBRID_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// Execute runs the CLI.
func Execute() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "hybrid-runner",
		Usage:   "Record-once, replay-many browser test runner",
		Version: Version,
		Description: `Hybrid Runner executes natural-language and Gherkin web tests.
The first run drives the browser with an AI agent and records a script;
later runs replay the script and call the agent only for broken steps.

Examples:
  hybrid-runner test tests/login.txt
  hybrid-runner test tests/login.feature --force-agent -i EMAIL=a@b.c
  hybrid-runner suite tests/ --parallel 3
  hybrid-runner validate tests/
  hybrid-runner serve --addr :8088`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			testCommand,
			suiteCommand,
			validateCommand,
			serveCommand,
			usageCommand,
		},
	}
}
