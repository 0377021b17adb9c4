package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/hybrid-runner/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check recorded scripts without starting a browser",
	ArgsUsage: "<script|test|dir>",
	Description: `Checks .workflow.json documents: the version, input declarations, step
types, navigation URLs and the locator bundle of every element step.
A test path is checked through its script; a directory is walked.

Examples:
  hybrid-runner validate tests/
  hybrid-runner validate tests/login.txt --strict`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Treat warnings as errors",
		},
	},
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one path is required")
	}
	result := validator.New(c.Bool("strict")).Validate(c.Args().First())
	printValidation(os.Stdout, result)
	if !result.IsValid() {
		return cli.Exit("", 1)
	}
	return nil
}

func printValidation(w io.Writer, result *validator.Result) {
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s✗%s %v\n", color(colorRed), color(colorReset), e)
	}
	for _, e := range result.Warnings {
		fmt.Fprintf(w, "  %s⚠%s %v\n", color(colorYellow), color(colorReset), e)
	}
	fmt.Fprintf(w, "  %d script(s), %d error(s), %d warning(s)\n",
		len(result.Files), len(result.Errors), len(result.Warnings))
}
