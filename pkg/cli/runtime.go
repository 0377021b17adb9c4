package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/hybrid-runner/pkg/accounting"
	"github.com/devicelab-dev/hybrid-runner/pkg/agent"
	"github.com/devicelab-dev/hybrid-runner/pkg/config"
	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/driver/playwright"
	"github.com/devicelab-dev/hybrid-runner/pkg/events"
	"github.com/devicelab-dev/hybrid-runner/pkg/gherkin"
	"github.com/devicelab-dev/hybrid-runner/pkg/llm"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/orchestrator"
	"github.com/devicelab-dev/hybrid-runner/pkg/replay"
	"github.com/devicelab-dev/hybrid-runner/pkg/report"
	"github.com/devicelab-dev/hybrid-runner/pkg/resolver"
)

// loadConfig reads dotenv files, the config file and the environment, in
// that order, and validates the result.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadDotEnv(c.StringSlice("env-file")...); err != nil {
		return nil, err
	}

	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(config.GetHome())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging opens <dir>/hybrid-runner.log.
func initLogging(dir string, verbose bool) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to create log directory: %v\n", err)
		return
	}
	if err := logger.Init(filepath.Join(dir, "hybrid-runner.log")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}
	logger.SetDebug(verbose)
}

// runtime holds the long-lived collaborators shared by every session of
// one command: the browser, the tracked model and the event publisher.
type runtime struct {
	cfg     *config.Config
	browser *playwright.Browser
	model   core.LanguageModel
	usage   accounting.Sink
	events  events.Publisher

	closers []func() error
}

// newRuntime connects the optional backends. Redis and NATS are dialed
// only when configured; the browser starts on the first session.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	if cfg.Accounting.RedisURL != "" {
		sink, err := accounting.DialRedis(ctx, cfg.Accounting.RedisURL, cfg.Accounting.KeyPrefix)
		if err != nil {
			return nil, err
		}
		rt.usage = sink
		rt.closers = append(rt.closers, sink.Close)
	} else {
		rt.usage = accounting.NewMemorySink()
	}

	model, err := newModel(cfg, rt.usage)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.model = model

	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.Events.NATSURL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.events = pub
		rt.closers = append(rt.closers, pub.Close)
	} else {
		rt.events = events.Nop{}
	}

	rt.browser = playwright.NewBrowser(browserOptions(cfg))
	rt.closers = append(rt.closers, rt.browser.Close)
	return rt, nil
}

// Close releases everything newRuntime opened, newest first.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logger.Warn("shutdown: %v", err)
		}
	}
	rt.closers = nil
}

// Sessions returns the browser session factory.
func (rt *runtime) Sessions() core.SessionFactory {
	return rt.browser.Factory()
}

// Orchestrator builds an orchestrator and agent bound to one session.
func (rt *runtime) Orchestrator(driver core.PageDriver) *orchestrator.Orchestrator {
	return buildOrchestrator(rt.cfg, driver, rt.model, rt.events)
}

// RunnerInfo describes this runner in reports.
func (rt *runtime) RunnerInfo() report.RunnerInfo {
	return report.RunnerInfo{
		Version:  Version,
		Browser:  "chromium",
		Headless: rt.cfg.Browser.Headless,
		Model:    rt.cfg.LLM.Model,
	}
}

func buildOrchestrator(cfg *config.Config, driver core.PageDriver, model core.LanguageModel, pub events.Publisher) *orchestrator.Orchestrator {
	ag := agent.New(driver, model)
	ag.Resolver = resolverOptions(cfg)
	ag.MaxElements = cfg.Agent.MaxElements

	o := orchestrator.New(driver, ag, orchestratorConfig(cfg))
	o.Translator = &gherkin.Translator{Model: model}
	o.Events = pub
	return o
}

func browserOptions(cfg *config.Config) playwright.Options {
	return playwright.Options{
		Headless:          cfg.Browser.Headless,
		SlowMo:            config.Ms(cfg.Browser.SlowMoMs),
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		NavigationTimeout: config.Ms(cfg.Browser.NavigationTimeoutMs),
		ExecutablePath:    cfg.Browser.ExecutablePath,
	}
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     config.Ms(cfg.LLM.TimeoutMs),
	}
}

// fallbackLLMConfig is llmConfig for the fallback model.
func fallbackLLMConfig(cfg *config.Config) (string, llm.Config) {
	f := cfg.LLM.ResolvedFallback()
	l := llmConfig(cfg)
	l.Model, l.BaseURL, l.APIKey = f.Model, f.BaseURL, f.APIKey
	return f.Provider, l
}

// newModel builds the tracked primary model, wrapped with the tracked
// fallback model when one is configured.
func newModel(cfg *config.Config, sink accounting.Sink) (core.LanguageModel, error) {
	primary, err := llm.NewProvider(cfg.LLM.Provider, llmConfig(cfg))
	if err != nil {
		return nil, err
	}
	tracked := accounting.Track(primary, sink)
	if cfg.LLM.Fallback.Model == "" {
		return tracked, nil
	}

	provider, fcfg := fallbackLLMConfig(cfg)
	secondary, err := llm.NewProvider(provider, fcfg)
	if err != nil {
		return nil, err
	}
	logger.Info("llm: %s/%s with fallback %s/%s", cfg.LLM.Provider, cfg.LLM.Model, provider, fcfg.Model)
	return &llm.Fallback{Primary: tracked, Secondary: accounting.Track(secondary, sink)}, nil
}

func resolverOptions(cfg *config.Config) resolver.Options {
	return resolver.Options{
		NominalTimeout: config.Ms(cfg.Resolver.NominalTimeoutMs),
		TotalBudget:    config.Ms(cfg.Resolver.TotalBudgetMs),
	}
}

func settleConfig(cfg *config.Config) replay.Settle {
	s := cfg.Stability
	return replay.Settle{
		Base:           config.Ms(s.BaseMs),
		SubmitClick:    config.Ms(s.SubmitClickMs),
		Click:          config.Ms(s.ClickMs),
		Input:          config.Ms(s.InputMs),
		Navigation:     config.Ms(s.NavigationMs),
		Network:        config.Ms(s.NetworkIdleMs),
		SubmitKeywords: s.SubmitKeywords,
	}
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		FullRunMaxSteps: cfg.Agent.FullRunMaxSteps,
		StepMaxSteps:    cfg.Agent.StepMaxSteps,
		FailureBehavior: gherkin.FailureBehavior(cfg.Agent.FailureBehavior),
		Replay: replay.Config{
			Resolver: resolverOptions(cfg),
			Settle:   settleConfig(cfg),
		},
	}
}

// mergeInputs layers --input values over the config's env defaults.
func mergeInputs(defaults map[string]string, flags []string) (map[string]interface{}, error) {
	inputs := make(map[string]interface{}, len(defaults)+len(flags))
	for k, v := range defaults {
		inputs[k] = v
	}
	for _, kv := range flags {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid input %q: expected KEY=VALUE", kv)
		}
		inputs[k] = v
	}
	return inputs, nil
}

// resolveOutputDir returns the report directory for a run:
// <output>/<timestamp>/, or <output>/ itself when flatten is set.
func resolveOutputDir(output string, flatten bool, now time.Time) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./reports"
	}
	if flatten {
		return filepath.Clean(baseDir), nil
	}
	return filepath.Join(baseDir, now.Format("2006-01-02_15-04-05")), nil
}
