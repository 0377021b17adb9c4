package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/driver/mock"
	"github.com/devicelab-dev/hybrid-runner/pkg/orchestrator"
	"github.com/devicelab-dev/hybrid-runner/pkg/replay"
	"github.com/devicelab-dev/hybrid-runner/pkg/report"
	"github.com/devicelab-dev/hybrid-runner/pkg/script"
)

// agentFunc adapts a function to core.AutonomousAgent.
type agentFunc func(ctx context.Context, task string, maxSteps int) (*core.ActionTrace, error)

func (f agentFunc) Run(ctx context.Context, task string, maxSteps int) (*core.ActionTrace, error) {
	return f(ctx, task, maxSteps)
}

// passUnlessBroken succeeds for every scenario except ones mentioning "broken".
var passUnlessBroken = agentFunc(func(ctx context.Context, task string, maxSteps int) (*core.ActionTrace, error) {
	narration := "Task completed successfully"
	if strings.Contains(task, "broken") {
		narration = "Task failed: page is broken"
	}
	return &core.ActionTrace{
		Actions:   []core.Action{{Name: "go_to_url", Params: map[string]interface{}{"url": "https://a.test"}}},
		Narration: []string{narration},
	}, nil
})

type sessionCounter struct {
	mu     sync.Mutex
	opened int
	closed int
	err    error
}

func (c *sessionCounter) factory(ctx context.Context) (core.PageDriver, func() error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, nil, c.err
	}
	c.opened++
	return mock.New(mock.Config{}), func() error {
		c.mu.Lock()
		c.closed++
		c.mu.Unlock()
		return nil
	}, nil
}

func builder(agent core.AutonomousAgent) OrchestratorFactory {
	return func(driver core.PageDriver) *orchestrator.Orchestrator {
		o := orchestrator.New(driver, agent, orchestrator.Config{
			Replay: replay.Config{Sleep: func(context.Context, time.Duration) error { return nil }},
		})
		return o
	}
}

func writeTest(t *testing.T, dir, name, title string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	body := "Feature: " + title + "\n  Scenario: Open\n    Given I navigate to https://a.test\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscoverTests(t *testing.T) {
	dir := t.TempDir()
	writeTest(t, dir, "b.feature", "B")
	writeTest(t, dir, "a.txt", "A")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeTest(t, filepath.Join(dir, "nested"), "c.TXT", "C")
	for _, name := range []string{"a.workflow.json", "notes.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := DiscoverTests(dir)
	if err != nil {
		t.Fatalf("DiscoverTests() error = %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.feature"),
		filepath.Join(dir, "nested", "c.TXT"),
	}
	if len(got) != len(want) {
		t.Fatalf("DiscoverTests() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("test %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDiscoverTests_MissingDir(t *testing.T) {
	if _, err := DiscoverTests(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestRun_Sequential(t *testing.T) {
	dir := t.TempDir()
	tests := []string{writeTest(t, dir, "a.txt", "A"), writeTest(t, dir, "b.txt", "B")}
	out := filepath.Join(dir, "reports")
	sessions := &sessionCounter{}

	var started []string
	r := New(sessions.factory, builder(passUnlessBroken), RunnerConfig{
		OutputDir:   out,
		OnTestStart: func(idx, total int, path string) { started = append(started, path) },
	})
	res, err := r.Run(context.Background(), tests)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Success || res.TotalTests != 2 || res.PassedTests != 2 {
		t.Errorf("suite = %+v", res)
	}
	if sessions.opened != 1 || sessions.closed != 1 {
		t.Errorf("sessions opened/closed = %d/%d, want 1/1", sessions.opened, sessions.closed)
	}
	if len(started) != 2 || started[0] != tests[0] {
		t.Errorf("start order = %v", started)
	}
	for _, p := range tests {
		if !script.Exists(script.PathFor(p)) {
			t.Errorf("no script recorded for %s", p)
		}
	}

	index, err := report.ReadIndex(out)
	if err != nil {
		t.Fatal(err)
	}
	if index.Status != report.StatusPassed || index.Summary.Passed != 2 {
		t.Errorf("index = %s %+v", index.Status, index.Summary)
	}
}

func TestRun_ParallelWithFailure(t *testing.T) {
	dir := t.TempDir()
	tests := []string{
		writeTest(t, dir, "a.txt", "A"),
		writeTest(t, dir, "b.txt", "broken B"),
		writeTest(t, dir, "c.txt", "C"),
	}
	sessions := &sessionCounter{}

	r := New(sessions.factory, builder(passUnlessBroken), RunnerConfig{OutputDir: filepath.Join(dir, "out"), Parallelism: 2})
	res, err := r.Run(context.Background(), tests)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Success || res.PassedTests != 2 || res.FailedTests != 1 {
		t.Errorf("suite = success %v passed %d failed %d", res.Success, res.PassedTests, res.FailedTests)
	}
	if sessions.opened != 2 || sessions.closed != 2 {
		t.Errorf("sessions opened/closed = %d/%d, want 2/2", sessions.opened, sessions.closed)
	}
	if script.Exists(script.PathFor(tests[1])) {
		t.Error("failed test must not record a script")
	}
}

func TestRun_StopOnFail(t *testing.T) {
	dir := t.TempDir()
	tests := []string{writeTest(t, dir, "a.txt", "broken A"), writeTest(t, dir, "b.txt", "B")}
	out := filepath.Join(dir, "out")

	r := New((&sessionCounter{}).factory, builder(passUnlessBroken), RunnerConfig{OutputDir: out, StopOnFail: true})
	res, err := r.Run(context.Background(), tests)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FailedTests != 1 || res.SkippedTests != 1 || len(res.Results) != 1 {
		t.Errorf("suite = failed %d skipped %d results %d", res.FailedTests, res.SkippedTests, len(res.Results))
	}

	index, err := report.ReadIndex(out)
	if err != nil {
		t.Fatal(err)
	}
	if index.Tests[1].Status != report.StatusSkipped {
		t.Errorf("second test = %s, want skipped", index.Tests[1].Status)
	}
}

func TestRun_NoSession(t *testing.T) {
	dir := t.TempDir()
	tests := []string{writeTest(t, dir, "a.txt", "A")}
	sessions := &sessionCounter{err: errors.New("chromium missing")}

	r := New(sessions.factory, builder(passUnlessBroken), RunnerConfig{OutputDir: filepath.Join(dir, "out")})
	res, err := r.Run(context.Background(), tests)
	if err == nil {
		t.Fatal("expected error when no session opens")
	}
	if res.SkippedTests != 1 || res.Success {
		t.Errorf("suite = %+v", res)
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	tests := []string{writeTest(t, dir, "a.txt", "A")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New((&sessionCounter{}).factory, builder(passUnlessBroken), RunnerConfig{OutputDir: filepath.Join(dir, "out")})
	res, err := r.Run(ctx, tests)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.SkippedTests != 1 {
		t.Errorf("SkippedTests = %d, want 1", res.SkippedTests)
	}
}

func TestBuildSuiteResult(t *testing.T) {
	tests := []struct {
		name    string
		results []*orchestrator.TestResult
		success bool
		passed  int
		failed  int
		skipped int
	}{
		{"empty", nil, false, 0, 0, 0},
		{"all passed", []*orchestrator.TestResult{{Success: true}, {Success: true}}, true, 2, 0, 0},
		{"one failed", []*orchestrator.TestResult{{Success: true}, {Success: false}}, false, 1, 1, 0},
		{"one skipped", []*orchestrator.TestResult{{Success: true}, nil}, false, 1, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := buildSuiteResult(tt.results, time.Second)
			if s.Success != tt.success || s.PassedTests != tt.passed || s.FailedTests != tt.failed || s.SkippedTests != tt.skipped {
				t.Errorf("buildSuiteResult() = %+v", s)
			}
		})
	}
}

func TestRunOne(t *testing.T) {
	dir := t.TempDir()
	path := writeTest(t, dir, "a.txt", "A")
	sessions := &sessionCounter{}

	res, err := RunOne(context.Background(), sessions.factory, builder(passUnlessBroken), orchestrator.Request{TestPath: path, RunID: "fixed"})
	if err != nil {
		t.Fatalf("RunOne() error = %v", err)
	}
	if !res.Success || res.RunID != "fixed" {
		t.Errorf("result = success %v run %s", res.Success, res.RunID)
	}
	if sessions.opened != 1 || sessions.closed != 1 {
		t.Errorf("sessions opened/closed = %d/%d, want 1/1", sessions.opened, sessions.closed)
	}

	sessions.err = errors.New("no chromium")
	if _, err := RunOne(context.Background(), sessions.factory, builder(passUnlessBroken), orchestrator.Request{TestPath: path}); err == nil {
		t.Error("expected session error")
	}
}
