package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/executor"
	"github.com/devicelab-dev/hybrid-runner/pkg/orchestrator"
	"github.com/devicelab-dev/hybrid-runner/pkg/report"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Slow step threshold in milliseconds
const slowThresholdMs = 5000

var colorsEnabled = true

func init() {
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// formatDuration formats milliseconds to a human-readable string.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}

func onTestStart(testIdx, total int, path string) {
	fmt.Printf("\n  %s[%d/%d]%s %s%s%s\n",
		color(colorCyan), testIdx+1, total, color(colorReset),
		color(colorBold), path, color(colorReset))
	fmt.Println("  " + strings.Repeat("─", 60))
}

func onTestEnd(_ int, res *orchestrator.TestResult) {
	printSteps(os.Stdout, res)
	printVerdict(os.Stdout, res)
}

// printSteps prints one line per step outcome.
func printSteps(w io.Writer, res *orchestrator.TestResult) {
	fallback := make(map[int]bool, len(res.FallbackSteps))
	for _, idx := range res.FallbackSteps {
		fallback[idx] = true
	}

	for _, out := range res.StepResults {
		ms := out.Duration.Milliseconds()
		label := report.StatusLabel(out.Status, out.Inferred)
		desc := out.Description
		if desc == "" {
			desc = fmt.Sprintf("step %d", out.StepIndex+1)
		}
		if fallback[out.StepIndex] {
			desc += color(colorYellow) + " [agent]" + color(colorReset)
		}

		switch out.Status {
		case core.StatusFailed:
			fmt.Fprintf(w, "    %s✗%s %s %s(%s, %s)%s\n",
				color(colorRed), color(colorReset), desc,
				color(colorGray), label, formatDuration(ms), color(colorReset))
			if out.Message != "" {
				fmt.Fprintf(w, "      %s╰─%s %s\n", color(colorGray), color(colorReset), out.Message)
			}
		default:
			symbol, symbolColor := "✓", color(colorGreen)
			if ms >= slowThresholdMs {
				symbol, symbolColor = "⚠", color(colorYellow)
			}
			if out.NoOp {
				label += ", no-op"
			}
			fmt.Fprintf(w, "    %s%s%s %s %s(%s, %s)%s\n",
				symbolColor, symbol, color(colorReset), desc,
				color(colorGray), label, formatDuration(ms), color(colorReset))
		}
	}
}

// printVerdict prints the test's final line and failure details.
func printVerdict(w io.Writer, res *orchestrator.TestResult) {
	dur := formatDuration(res.Duration.Milliseconds())
	if res.Success {
		fmt.Fprintf(w, "  %s✓ passed%s via %s %s%s%s\n",
			color(colorGreen), color(colorReset), res.ExecutionMethod,
			color(colorGray), dur, color(colorReset))
	} else {
		fmt.Fprintf(w, "  %s✗ failed%s via %s %s%s%s\n",
			color(colorRed), color(colorReset), res.ExecutionMethod,
			color(colorGray), dur, color(colorReset))
		if res.FailureDetails != "" {
			fmt.Fprintf(w, "    %s\n", res.FailureDetails)
		}
	}
	if res.WorkflowUpdated {
		fmt.Fprintf(w, "  %sscript updated%s %s (v%s)\n",
			color(colorYellow), color(colorReset), res.ScriptPath, res.ScriptVersion)
	}
}

// printSuiteSummary prints the totals table.
func printSuiteSummary(w io.Writer, res *executor.SuiteResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  "+strings.Repeat("═", 60))
	if res.PassedTests > 0 {
		fmt.Fprintf(w, "  %s%d passing%s\n", color(colorGreen), res.PassedTests, color(colorReset))
	}
	if res.FailedTests > 0 {
		fmt.Fprintf(w, "  %s%d failing%s\n", color(colorRed), res.FailedTests, color(colorReset))
	}
	if res.SkippedTests > 0 {
		fmt.Fprintf(w, "  %s%d skipped%s\n", color(colorGray), res.SkippedTests, color(colorReset))
	}

	recovered := 0
	for _, r := range res.Results {
		if r != nil && len(r.FallbackSteps) > 0 {
			recovered++
		}
	}
	if recovered > 0 {
		fmt.Fprintf(w, "  %s%d recovered by the agent%s\n", color(colorYellow), recovered, color(colorReset))
	}

	fmt.Fprintf(w, "  %s%d tests in %s%s\n", color(colorGray), res.TotalTests,
		formatDuration(res.Duration.Milliseconds()), color(colorReset))
	if res.ReportDir != "" {
		fmt.Fprintf(w, "  Report: %s\n", res.ReportDir)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
