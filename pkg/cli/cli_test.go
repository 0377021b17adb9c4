package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/hybrid-runner/pkg/accounting"
	"github.com/devicelab-dev/hybrid-runner/pkg/agent"
	"github.com/devicelab-dev/hybrid-runner/pkg/config"
	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/driver/mock"
	"github.com/devicelab-dev/hybrid-runner/pkg/events"
	"github.com/devicelab-dev/hybrid-runner/pkg/executor"
	"github.com/devicelab-dev/hybrid-runner/pkg/gherkin"
	"github.com/devicelab-dev/hybrid-runner/pkg/llm"
	"github.com/devicelab-dev/hybrid-runner/pkg/orchestrator"
)

func init() {
	colorsEnabled = false
}

func TestResolveOutputDir(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		name    string
		output  string
		flatten bool
		want    string
		wantErr bool
	}{
		{"default", "", false, "reports/2026-03-04_05-06-07", false},
		{"custom", "./my-reports", false, "my-reports/2026-03-04_05-06-07", false},
		{"flatten", "./my-reports", true, "my-reports", false},
		{"flatten without output", "", true, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveOutputDir(tt.output, tt.flatten, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != filepath.FromSlash(tt.want) {
				t.Errorf("resolveOutputDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMergeInputs(t *testing.T) {
	got, err := mergeInputs(
		map[string]string{"EMAIL": "default@x.test", "PASSWORD": "pw"},
		[]string{"EMAIL=a@b.c", "TOKEN=x=y", "EMPTY="},
	)
	if err != nil {
		t.Fatalf("mergeInputs: %v", err)
	}
	want := map[string]interface{}{
		"EMAIL":    "a@b.c",
		"PASSWORD": "pw",
		"TOKEN":    "x=y",
		"EMPTY":    "",
	}
	if len(got) != len(want) {
		t.Fatalf("mergeInputs() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("inputs[%s] = %v, want %v", k, got[k], v)
		}
	}
}

func TestMergeInputs_Invalid(t *testing.T) {
	for _, in := range []string{"NOVALUE", "=x", " =x"} {
		if _, err := mergeInputs(nil, []string{in}); err == nil {
			t.Errorf("mergeInputs(%q) expected error", in)
		}
	}
}

func TestOrchestratorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Agent.FailureBehavior = string(gherkin.StopOnAssertion)
	cfg.Resolver.TotalBudgetMs = 9000

	got := orchestratorConfig(cfg)
	if got.FullRunMaxSteps != 50 || got.StepMaxSteps != 5 {
		t.Errorf("step budgets = %d/%d, want 50/5", got.FullRunMaxSteps, got.StepMaxSteps)
	}
	if got.FailureBehavior != gherkin.StopOnAssertion {
		t.Errorf("FailureBehavior = %v, want %v", got.FailureBehavior, gherkin.StopOnAssertion)
	}
	if got.Replay.Resolver.NominalTimeout != 5*time.Second {
		t.Errorf("NominalTimeout = %v, want 5s", got.Replay.Resolver.NominalTimeout)
	}
	if got.Replay.Resolver.TotalBudget != 9*time.Second {
		t.Errorf("TotalBudget = %v, want 9s", got.Replay.Resolver.TotalBudget)
	}

	s := got.Replay.Settle
	wantSettle := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"Base", s.Base, 500 * time.Millisecond},
		{"SubmitClick", s.SubmitClick, 3 * time.Second},
		{"Click", s.Click, 1500 * time.Millisecond},
		{"Input", s.Input, 500 * time.Millisecond},
		{"Navigation", s.Navigation, 2 * time.Second},
		{"Network", s.Network, 3 * time.Second},
	}
	for _, w := range wantSettle {
		if w.got != w.want {
			t.Errorf("Settle.%s = %v, want %v", w.name, w.got, w.want)
		}
	}
	if len(s.SubmitKeywords) != len(cfg.Stability.SubmitKeywords) {
		t.Errorf("SubmitKeywords = %v, want %v", s.SubmitKeywords, cfg.Stability.SubmitKeywords)
	}
}

func TestBrowserAndLLMOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Browser.Headless = false
	cfg.Browser.SlowMoMs = 250
	cfg.LLM.BaseURL = "http://localhost:11434/v1"
	cfg.LLM.MaxTokens = 2048

	b := browserOptions(cfg)
	if b.Headless {
		t.Error("Headless = true, want false")
	}
	if b.SlowMo != 250*time.Millisecond {
		t.Errorf("SlowMo = %v, want 250ms", b.SlowMo)
	}
	if b.ViewportWidth != 1280 || b.ViewportHeight != 720 {
		t.Errorf("viewport = %dx%d, want 1280x720", b.ViewportWidth, b.ViewportHeight)
	}
	if b.NavigationTimeout != 30*time.Second {
		t.Errorf("NavigationTimeout = %v, want 30s", b.NavigationTimeout)
	}

	l := llmConfig(cfg)
	if l.BaseURL != "http://localhost:11434/v1" || l.Model != "gpt-4o" || l.MaxTokens != 2048 {
		t.Errorf("llmConfig() = %+v", l)
	}
	if l.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v, want 2m", l.Timeout)
	}
}

func TestNewModel(t *testing.T) {
	cfg := config.Default()
	sink := accounting.NewMemorySink()

	m, err := newModel(cfg, sink)
	if err != nil {
		t.Fatalf("newModel: %v", err)
	}
	if _, ok := m.(*accounting.TrackedModel); !ok {
		t.Errorf("model = %T, want *accounting.TrackedModel", m)
	}

	cfg.LLM.APIKey = "sk-oai"
	cfg.LLM.Fallback = config.FallbackLLMConfig{Provider: config.ProviderAnthropic, Model: "claude-3-haiku-20240307", APIKey: "sk-ant"}
	m, err = newModel(cfg, sink)
	if err != nil {
		t.Fatalf("newModel with fallback: %v", err)
	}
	fb, ok := m.(*llm.Fallback)
	if !ok {
		t.Fatalf("model = %T, want *llm.Fallback", m)
	}
	if got := fb.Secondary.(*accounting.TrackedModel).ModelName(); got != "claude-3-haiku-20240307" {
		t.Errorf("fallback model = %q", got)
	}
	if _, ok := fb.Secondary.(*accounting.TrackedModel).Model.(*llm.AnthropicClient); !ok {
		t.Errorf("fallback client = %T, want *llm.AnthropicClient", fb.Secondary.(*accounting.TrackedModel).Model)
	}

	provider, l := fallbackLLMConfig(cfg)
	if provider != config.ProviderAnthropic || l.APIKey != "sk-ant" || l.BaseURL != "" {
		t.Errorf("fallbackLLMConfig() = %s %+v", provider, l)
	}

	cfg.LLM.Provider = "bedrock"
	if _, err := newModel(cfg, sink); err == nil {
		t.Error("newModel(bedrock) expected error")
	}
}

type stubModel struct{}

func (stubModel) Complete(context.Context, string) (string, error) { return "", nil }

func TestBuildOrchestrator(t *testing.T) {
	cfg := config.Default()
	cfg.Agent.MaxElements = 40
	drv := mock.New(mock.Config{})
	pub := events.NewRecorder()

	o := buildOrchestrator(cfg, drv, stubModel{}, pub)
	if o.Driver != core.PageDriver(drv) {
		t.Error("orchestrator not bound to the session driver")
	}
	ag, ok := o.Agent.(*agent.Agent)
	if !ok {
		t.Fatalf("Agent = %T, want *agent.Agent", o.Agent)
	}
	if ag.MaxElements != 40 {
		t.Errorf("MaxElements = %d, want 40", ag.MaxElements)
	}
	if ag.Driver != core.PageDriver(drv) {
		t.Error("agent not bound to the session driver")
	}
	if o.Translator == nil || o.Translator.Model == nil {
		t.Error("translator has no model")
	}
	if o.Events != events.Publisher(pub) {
		t.Error("events publisher not wired")
	}
}

func TestPrintStepsAndVerdict(t *testing.T) {
	res := &orchestrator.TestResult{
		Success:         false,
		ExecutionMethod: orchestrator.MethodReplayWithFallback,
		FallbackSteps:   []int{1},
		FailureDetails:  "step 3: Sign in button not found",
		StepResults: []core.StepOutcome{
			{StepIndex: 0, Description: "navigate", Status: core.StatusPassed, Duration: 120 * time.Millisecond},
			{StepIndex: 1, Description: "fill email", Status: core.StatusPassed, Duration: 2 * time.Second},
			{StepIndex: 2, Description: "click sign in", Status: core.StatusFailed, Inferred: true, Message: "not found"},
		},
		Duration: 4200 * time.Millisecond,
	}

	var buf bytes.Buffer
	printSteps(&buf, res)
	printVerdict(&buf, res)
	out := buf.String()

	for _, want := range []string{
		"✓ navigate (passed, 120ms)",
		"fill email [agent]",
		"✗ click sign in (failed (inferred), 0ms)",
		"╰─ not found",
		"✗ failed via replay_with_fallback 4.2s",
		"step 3: Sign in button not found",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSuiteSummary(t *testing.T) {
	res := &executor.SuiteResult{
		TotalTests:   3,
		PassedTests:  2,
		FailedTests:  1,
		Duration:     65 * time.Second,
		ReportDir:    "reports/x",
		Results:      []*orchestrator.TestResult{{FallbackSteps: []int{2}}, {}, nil},
		SkippedTests: 0,
	}
	var buf bytes.Buffer
	printSuiteSummary(&buf, res)
	out := buf.String()
	for _, want := range []string{"2 passing", "1 failing", "1 recovered by the agent", "3 tests in 1m 5s", "Report: reports/x"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "skipped") {
		t.Errorf("summary should omit zero skipped:\n%s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1500, "1.5s"},
		{60000, "1m 0s"},
		{125000, "2m 5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.ms); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

// isolate points home at an empty directory so no config.yaml is found.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HYBRID_RUNNER_HOME", t.TempDir())
	config.ResetHome()
	t.Cleanup(config.ResetHome)
}

func captureExit(t *testing.T) *int {
	t.Helper()
	code := -1
	prev := cli.OsExiter
	cli.OsExiter = func(c int) { code = c }
	t.Cleanup(func() { cli.OsExiter = prev })
	return &code
}

const validScript = `{
  "name": "login",
  "version": "1.0.0",
  "steps": [
    {"type": "navigation", "url": "https://shop.test/login"},
    {"type": "click", "primarySelector": "#signin"}
  ]
}`

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "login.workflow.json"), []byte(validScript), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := newApp().Run([]string{"hybrid-runner", "validate", dir}); err != nil {
		t.Errorf("validate valid dir: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.workflow.json"), []byte(`{"version":"1.0.0","steps":[{"type":"click"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	code := captureExit(t)
	if err := newApp().Run([]string{"hybrid-runner", "validate", dir}); err == nil {
		t.Error("validate broken dir: expected error")
	}
	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}
}

func TestCommandsRequireArgs(t *testing.T) {
	for _, cmd := range []string{"test", "suite", "validate"} {
		t.Run(cmd, func(t *testing.T) {
			err := newApp().Run([]string{"hybrid-runner", cmd})
			if err == nil || !strings.Contains(err.Error(), "required") {
				t.Errorf("%s without args: err = %v", cmd, err)
			}
		})
	}
}

func TestTestCommand_MissingFile(t *testing.T) {
	err := newApp().Run([]string{"hybrid-runner", "test", filepath.Join(t.TempDir(), "nope.txt")})
	if err == nil || !strings.Contains(err.Error(), "test not found") {
		t.Errorf("err = %v, want test not found", err)
	}
}

func TestSuiteCommand_NoTests(t *testing.T) {
	err := newApp().Run([]string{"hybrid-runner", "suite", t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "no tests found") {
		t.Errorf("err = %v, want no tests found", err)
	}
}

func TestLoadConfig_InvalidConfigRejected(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  failureBehavior: retry_forever\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := newApp().Run([]string{"hybrid-runner", "--config", path, "usage"})
	if err == nil || !strings.Contains(err.Error(), "failureBehavior") {
		t.Errorf("err = %v, want failureBehavior error", err)
	}
}

func TestUsageCommand(t *testing.T) {
	isolate(t)
	t.Setenv("REDIS_URL", "")
	err := newApp().Run([]string{"hybrid-runner", "usage"})
	if err == nil || !strings.Contains(err.Error(), "no usage store") {
		t.Errorf("without redis: err = %v", err)
	}

	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer m.Close()

	ctx := context.Background()
	sink, err := accounting.DialRedis(ctx, m.Addr(), "")
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer sink.Close()
	if err := sink.Record(ctx, accounting.Usage{Model: "gpt-4", InputTokens: 1000, OutputTokens: 500}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	t.Setenv("REDIS_URL", m.Addr())
	if err := newApp().Run([]string{"hybrid-runner", "usage", "--json"}); err != nil {
		t.Errorf("usage with redis: %v", err)
	}

	sum, err := sink.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	var buf bytes.Buffer
	printUsage(&buf, sum)
	if !strings.Contains(buf.String(), "gpt-4") || !strings.Contains(buf.String(), "$0.0600") {
		t.Errorf("printUsage output:\n%s", buf.String())
	}
}
