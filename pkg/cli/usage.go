package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/hybrid-runner/pkg/accounting"
)

var usageCommand = &cli.Command{
	Name:  "usage",
	Usage: "Show accumulated token usage and cost",
	Description: `Reads the usage totals from Redis (accounting.redisURL or REDIS_URL).
Without Redis, usage lives only in the memory of the process that spent it.

Examples:
  hybrid-runner usage
  REDIS_URL=redis://localhost:6379/0 hybrid-runner usage --json`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the summary as JSON",
		},
	},
	Action: runUsage,
}

func runUsage(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Accounting.RedisURL == "" {
		return fmt.Errorf("no usage store configured: set accounting.redisURL or REDIS_URL")
	}

	sink, err := accounting.DialRedis(c.Context, cfg.Accounting.RedisURL, cfg.Accounting.KeyPrefix)
	if err != nil {
		return err
	}
	defer sink.Close()

	sum, err := sink.Summary(c.Context)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(os.Stdout, sum)
	}
	printUsage(os.Stdout, sum)
	return nil
}

func printUsage(w io.Writer, sum *accounting.Summary) {
	fmt.Fprintf(w, "  %-24s %8s %12s %12s %10s\n", "MODEL", "CALLS", "INPUT", "OUTPUT", "COST")
	for _, name := range sum.ModelNames() {
		m := sum.Models[name]
		fmt.Fprintf(w, "  %-24s %8d %12d %12d %10s\n", name, m.Calls, m.InputTokens, m.OutputTokens, formatCost(m.Cost))
	}
	fmt.Fprintf(w, "  %s%-24s %8d %12d %12d %10s%s\n", color(colorBold), "TOTAL",
		sum.TotalCalls, sum.InputTokens, sum.OutputTokens, formatCost(sum.TotalCost), color(colorReset))
}

func formatCost(c float64) string {
	return fmt.Sprintf("$%.4f", c)
}
