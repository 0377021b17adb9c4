package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/hybrid-runner/pkg/config"
	"github.com/devicelab-dev/hybrid-runner/pkg/executor"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/orchestrator"
)

var inputFlag = &cli.StringSliceFlag{
	Name:    "input",
	Aliases: []string{"i"},
	Usage:   "Run input as KEY=VALUE, fills ${KEY} in scripts (repeatable)",
}

var forceAgentFlag = &cli.BoolFlag{
	Name:  "force-agent",
	Usage: "Ignore any recorded script and run the whole test with the agent",
}

var testCommand = &cli.Command{
	Name:      "test",
	Usage:     "Run one test, replaying its script when one exists",
	ArgsUsage: "<test.txt|test.feature>",
	Description: `Runs a single test file. A test without a script is executed by the
agent and recorded to <test>.workflow.json; a test with a script is
replayed and only failed steps are handed to the agent.

Examples:
  hybrid-runner test tests/login.txt
  hybrid-runner test tests/login.txt --force-agent
  hybrid-runner test tests/login.feature -i EMAIL=a@b.c -i PASSWORD=secret
  hybrid-runner test tests/login.txt --json`,
	Flags: []cli.Flag{
		forceAgentFlag,
		inputFlag,
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the result as JSON",
		},
	},
	Action: runTest,
}

func runTest(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one test file is required")
	}
	path := c.Args().First()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("test not found: %s", path)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	inputs, err := mergeInputs(cfg.Env, c.StringSlice("input"))
	if err != nil {
		return err
	}

	initLogging(config.GetLogsDir(), c.Bool("verbose"))
	defer logger.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("=== Test execution started: %s ===", path)
	res, err := executor.RunOne(ctx, rt.Sessions(), rt.Orchestrator, orchestrator.Request{
		TestPath:   path,
		ForceAgent: c.Bool("force-agent"),
		Inputs:     inputs,
	})
	if err != nil {
		return err
	}
	reportUsage(ctx, rt)

	if c.Bool("json") {
		if err := printJSON(os.Stdout, res); err != nil {
			return err
		}
	} else {
		onTestStart(0, 1, path)
		onTestEnd(0, res)
	}
	if !res.Success {
		return cli.Exit("", 1)
	}
	return nil
}

// reportUsage logs this process's token spend.
func reportUsage(ctx context.Context, rt *runtime) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	sum, err := rt.usage.Summary(ctx)
	if err != nil {
		logger.Warn("usage summary unavailable: %v", err)
		return
	}
	logger.Info("token usage: %d calls, %d input, %d output, $%.4f",
		sum.TotalCalls, sum.InputTokens, sum.OutputTokens, sum.TotalCost)
}
