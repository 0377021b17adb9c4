package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/hybrid-runner/pkg/config"
	"github.com/devicelab-dev/hybrid-runner/pkg/executor"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
)

var suiteCommand = &cli.Command{
	Name:      "suite",
	Usage:     "Run every test in a directory and write a suite report",
	ArgsUsage: "<dir>",
	Description: `Runs every .txt and .feature test under a directory. Tests run one at a
time unless --parallel is given; each parallel worker gets its own
browser context.

Reports are written to <output>/<timestamp>/report.json with one detail
file per test under tests/.

Examples:
  hybrid-runner suite tests/
  hybrid-runner suite tests/ --parallel 4 --stop-on-fail
  hybrid-runner suite tests/ --output ./out --flatten`,
	Flags: []cli.Flag{
		forceAgentFlag,
		inputFlag,
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Number of tests to run at once",
			Value: 1,
		},
		&cli.BoolFlag{
			Name:  "stop-on-fail",
			Usage: "Skip the remaining tests after the first failure",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Report directory (default: <home>/reports)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Write the report directly into --output, without a timestamp folder",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the suite result as JSON",
		},
	},
	Action: runSuite,
}

func runSuite(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one test directory is required")
	}
	tests, err := executor.DiscoverTests(c.Args().First())
	if err != nil {
		return err
	}
	if len(tests) == 0 {
		return fmt.Errorf("no tests found in %s", c.Args().First())
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	inputs, err := mergeInputs(cfg.Env, c.StringSlice("input"))
	if err != nil {
		return err
	}

	output := c.String("output")
	if output == "" {
		output = config.GetReportsDir(cfg.Output.ReportsDir)
	}
	outputDir, err := resolveOutputDir(output, c.Bool("flatten"), time.Now())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	initLogging(outputDir, c.Bool("verbose"))
	defer logger.Close()
	logger.Info("=== Suite started: %d test(s) ===", len(tests))
	logger.Info("Output directory: %s", outputDir)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	asJSON := c.Bool("json")
	runCfg := executor.RunnerConfig{
		OutputDir:   outputDir,
		Parallelism: c.Int("parallel"),
		StopOnFail:  c.Bool("stop-on-fail"),
		ForceAgent:  c.Bool("force-agent"),
		Inputs:      inputs,
		Runner:      rt.RunnerInfo(),
	}
	// Live output interleaves badly with parallel workers.
	if !asJSON && runCfg.Parallelism <= 1 {
		runCfg.OnTestStart = func(idx, total int, path string) {
			onTestStart(idx, total, relPath(path))
		}
		runCfg.OnTestEnd = onTestEnd
	}

	result, err := executor.New(rt.Sessions(), rt.Orchestrator, runCfg).Run(ctx, tests)
	if err != nil {
		return err
	}
	reportUsage(ctx, rt)

	if asJSON {
		if err := printJSON(os.Stdout, result); err != nil {
			return err
		}
	} else {
		printSuiteSummary(os.Stdout, result)
	}
	logger.Info("=== Suite finished: %d passed, %d failed, %d skipped ===",
		result.PassedTests, result.FailedTests, result.SkippedTests)

	if !result.Success {
		return cli.Exit("", 1)
	}
	return nil
}

func relPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, path); err == nil {
		return rel
	}
	return path
}
