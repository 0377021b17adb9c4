// Package executor runs suites of tests, one browser session per worker,
// and writes their reports.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/orchestrator"
	"github.com/devicelab-dev/hybrid-runner/pkg/report"
	"github.com/devicelab-dev/hybrid-runner/pkg/script"
)

// TestExtensions are the test source suffixes a suite picks up.
var TestExtensions = []string{".txt", ".feature"}

// OrchestratorFactory builds an orchestrator bound to one session's driver.
type OrchestratorFactory func(driver core.PageDriver) *orchestrator.Orchestrator

// RunnerConfig configures the suite runner.
type RunnerConfig struct {
	OutputDir   string // Report output directory
	Parallelism int    // Max concurrent tests (0 or 1 = sequential)
	StopOnFail  bool   // Skip remaining tests after the first failure
	ForceAgent  bool   // Ignore existing scripts
	Inputs      map[string]interface{}

	Runner report.RunnerInfo

	// Live progress callbacks
	OnTestStart func(testIdx, totalTests int, path string)
	OnTestEnd   func(testIdx int, res *orchestrator.TestResult)
}

// SuiteResult contains the outcome of a suite run.
type SuiteResult struct {
	Success      bool                       `json:"success"`
	TotalTests   int                        `json:"total_tests"`
	PassedTests  int                        `json:"passed_tests"`
	FailedTests  int                        `json:"failed_tests"`
	SkippedTests int                        `json:"skipped_tests"`
	Duration     time.Duration              `json:"duration_ns"`
	ReportDir    string                     `json:"report_dir,omitempty"`
	Results      []*orchestrator.TestResult `json:"results"`
}

// Runner runs tests through orchestrators built per session.
type Runner struct {
	config   RunnerConfig
	sessions core.SessionFactory
	build    OrchestratorFactory
}

// New creates a new Runner.
func New(sessions core.SessionFactory, build OrchestratorFactory, cfg RunnerConfig) *Runner {
	return &Runner{
		config:   cfg,
		sessions: sessions,
		build:    build,
	}
}

// workItem is a test and its index in the suite.
type workItem struct {
	path  string
	index int
}

// Run executes all tests and writes the suite report. Workers pull from a
// shared queue; each opens its own browser session.
func (r *Runner) Run(ctx context.Context, tests []string) (*SuiteResult, error) {
	index, details, err := report.BuildSkeleton(tests, report.BuilderConfig{
		OutputDir: r.config.OutputDir,
		Runner:    r.config.Runner,
	})
	if err != nil {
		return nil, err
	}
	if err := report.WriteSkeleton(r.config.OutputDir, index, details); err != nil {
		return nil, err
	}

	indexWriter := report.NewIndexWriter(r.config.OutputDir, index)
	defer indexWriter.Close()
	indexWriter.Start()
	start := time.Now()

	workers := r.config.Parallelism
	if workers <= 0 {
		workers = 1
	}
	if workers > len(tests) {
		workers = len(tests)
	}

	queue := make(chan workItem, len(tests))
	for i, path := range tests {
		queue <- workItem{path: path, index: i}
	}
	close(queue)

	results := make([]*orchestrator.TestResult, len(tests))
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		stopAll bool
		opened  int
	)
	stopped := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stopAll
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			driver, closeSession, err := r.sessions(ctx)
			if err != nil {
				logger.Error("worker %d: browser session failed: %v", workerID, err)
				return
			}
			mu.Lock()
			opened++
			mu.Unlock()
			defer func() {
				if err := closeSession(); err != nil {
					logger.Warn("worker %d: closing session: %v", workerID, err)
				}
			}()
			orch := r.build(driver)

			for item := range queue {
				tw := report.NewTestWriter(&details[item.index], r.config.OutputDir, indexWriter)
				if stopped() || ctx.Err() != nil {
					tw.Skip("run stopped")
					continue
				}

				res := r.runTest(ctx, orch, tw, item, len(tests))
				mu.Lock()
				results[item.index] = res
				if r.config.StopOnFail && !res.Success {
					stopAll = true
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	// Items left in the queue had no worker to run them.
	for item := range queue {
		report.NewTestWriter(&details[item.index], r.config.OutputDir, indexWriter).Skip("no browser session available")
	}
	indexWriter.End()

	suite := buildSuiteResult(results, time.Since(start))
	suite.ReportDir = r.config.OutputDir
	if opened == 0 {
		return suite, fmt.Errorf("no browser session could be opened")
	}
	return suite, nil
}

func (r *Runner) runTest(ctx context.Context, orch *orchestrator.Orchestrator, tw *report.TestWriter, item workItem, total int) *orchestrator.TestResult {
	if r.config.OnTestStart != nil {
		r.config.OnTestStart(item.index, total, item.path)
	}
	tw.Start()

	res, err := orch.RunTest(ctx, orchestrator.Request{
		TestPath:   item.path,
		ForceAgent: r.config.ForceAgent,
		Inputs:     r.config.Inputs,
	})
	if err != nil {
		logger.Warn("test %s did not run: %v", item.path, err)
	}
	tw.Finish(res)

	if r.config.OnTestEnd != nil {
		r.config.OnTestEnd(item.index, res)
	}
	return res
}

// buildSuiteResult aggregates test results. Nil entries were skipped.
func buildSuiteResult(results []*orchestrator.TestResult, wallClock time.Duration) *SuiteResult {
	s := &SuiteResult{
		TotalTests: len(results),
		Duration:   wallClock,
		Results:    make([]*orchestrator.TestResult, 0, len(results)),
	}
	for _, res := range results {
		switch {
		case res == nil:
			s.SkippedTests++
			continue
		case res.Success:
			s.PassedTests++
		default:
			s.FailedTests++
		}
		s.Results = append(s.Results, res)
	}
	s.Success = s.TotalTests > 0 && s.PassedTests == s.TotalTests
	return s
}

// DiscoverTests returns the test sources under dir, sorted by path.
// Script documents next to them are ignored.
func DiscoverTests(dir string) ([]string, error) {
	var tests []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, script.FileSuffix) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range TestExtensions {
			if ext == want {
				tests = append(tests, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover tests in %s: %w", dir, err)
	}
	sort.Strings(tests)
	return tests, nil
}
