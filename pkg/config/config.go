// Package config handles configuration for hybrid-runner.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/gherkin"
)

// LLM providers. Any OpenAI-compatible endpoint works as ProviderOpenAI
// through llm.baseURL.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultModels is the model a provider selected through AI_PROVIDER uses
// when no model is given.
var DefaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o",
	ProviderAnthropic: "claude-3-5-sonnet-20241022",
}

func knownProvider(p string) bool {
	_, ok := DefaultModels[p]
	return ok
}

// Config represents the workspace configuration (config.yaml).
type Config struct {
	Browser    BrowserConfig     `yaml:"browser"`
	Resolver   ResolverConfig    `yaml:"resolver"`
	Stability  StabilityConfig   `yaml:"stability"`
	Agent      AgentConfig       `yaml:"agent"`
	LLM        LLMConfig         `yaml:"llm"`
	Accounting AccountingConfig  `yaml:"accounting"`
	Events     EventsConfig      `yaml:"events"`
	Server     ServerConfig      `yaml:"server"`
	Output     OutputConfig      `yaml:"output"`
	Env        map[string]string `yaml:"env"` // Default run inputs for ${name}
}

// BrowserConfig configures the Chromium session.
type BrowserConfig struct {
	Headless            bool   `yaml:"headless"`
	SlowMoMs            int    `yaml:"slowMoMs"`
	ViewportWidth       int    `yaml:"viewportWidth"`
	ViewportHeight      int    `yaml:"viewportHeight"`
	NavigationTimeoutMs int    `yaml:"navigationTimeoutMs"`
	ExecutablePath      string `yaml:"executablePath"`
}

// ResolverConfig configures element resolution.
type ResolverConfig struct {
	NominalTimeoutMs int `yaml:"nominalTimeoutMs"`
	TotalBudgetMs    int `yaml:"totalBudgetMs"` // 0 = unbounded
}

// StabilityConfig holds the post-action waits used on replay.
type StabilityConfig struct {
	BaseMs         int      `yaml:"baseMs"`
	SubmitClickMs  int      `yaml:"submitClickMs"`
	ClickMs        int      `yaml:"clickMs"`
	InputMs        int      `yaml:"inputMs"`
	NavigationMs   int      `yaml:"navigationMs"`
	NetworkIdleMs  int      `yaml:"networkIdleMs"` // 0 = fixed windows only
	SubmitKeywords []string `yaml:"submitKeywords"`
}

// AgentConfig bounds agent invocations.
type AgentConfig struct {
	FullRunMaxSteps int    `yaml:"fullRunMaxSteps"`
	StepMaxSteps    int    `yaml:"stepMaxSteps"`
	FailureBehavior string `yaml:"failureBehavior"`
	MaxElements     int    `yaml:"maxElements"`
}

// LLMConfig configures the language model.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"baseURL"`
	APIKey      string  `yaml:"apiKey"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
	TimeoutMs   int     `yaml:"timeoutMs"`

	// Fallback answers when the primary model fails. Empty Model disables it.
	Fallback FallbackLLMConfig `yaml:"fallback"`
}

// FallbackLLMConfig names the secondary model. Empty Provider, BaseURL and
// APIKey inherit the primary's when the providers match.
type FallbackLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"baseURL"`
	APIKey   string `yaml:"apiKey"`
}

// ResolvedFallback returns the fallback with inherited fields filled in.
func (l LLMConfig) ResolvedFallback() FallbackLLMConfig {
	f := l.Fallback
	if f.Provider == "" {
		f.Provider = l.Provider
	}
	if f.Provider == l.Provider {
		if f.BaseURL == "" {
			f.BaseURL = l.BaseURL
		}
		if f.APIKey == "" {
			f.APIKey = l.APIKey
		}
	}
	return f
}

// AccountingConfig selects the token usage sink. Empty RedisURL keeps
// usage in memory.
type AccountingConfig struct {
	RedisURL  string `yaml:"redisURL"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// EventsConfig selects the event publisher. Empty NATSURL disables events.
type EventsConfig struct {
	NATSURL       string `yaml:"natsURL"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// OutputConfig configures reports.
type OutputConfig struct {
	ReportsDir string `yaml:"reportsDir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:            true,
			ViewportWidth:       1280,
			ViewportHeight:      720,
			NavigationTimeoutMs: 30000,
		},
		Resolver: ResolverConfig{NominalTimeoutMs: 5000},
		Stability: StabilityConfig{
			BaseMs:         500,
			SubmitClickMs:  3000,
			ClickMs:        1500,
			InputMs:        500,
			NavigationMs:   2000,
			NetworkIdleMs:  3000,
			SubmitKeywords: []string{"submit", "login", "log in", "sign in", "signin"},
		},
		Agent: AgentConfig{
			FullRunMaxSteps: 50,
			StepMaxSteps:    5,
			FailureBehavior: string(gherkin.StopOnFirst),
			MaxElements:     80,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o",
			Temperature: 0.1,
			TimeoutMs:   120000,
		},
		Accounting: AccountingConfig{KeyPrefix: "token_usage"},
		Events:     EventsConfig{SubjectPrefix: "hybrid.runs"},
		Server:     ServerConfig{Addr: ":8088"},
		Output:     OutputConfig{ReportsDir: "reports"},
	}
}

// Load loads configuration from a file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"config.yaml", "config.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables on c.
func (c *Config) ApplyEnv() {
	if v := firstEnv("AI_PROVIDER", "LLM_PROVIDER"); v != "" {
		p := strings.ToLower(v)
		if p != c.LLM.Provider {
			if m, ok := DefaultModels[p]; ok {
				c.LLM.Model = m
			}
		}
		c.LLM.Provider = p
	}
	if v := firstEnv("AI_MODEL", "LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("AI_FALLBACK_PROVIDER"); v != "" {
		c.LLM.Fallback.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("AI_FALLBACK_MODEL"); v != "" {
		c.LLM.Fallback.Model = v
	}
	if v := firstEnv("AI_TEMPERATURE", "LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.LLM.Temperature = f
		}
	}
	if v := firstEnv("AI_MAX_TOKENS", "LLM_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LLM.MaxTokens = n
		}
	}
	c.applyProviderEnv(ProviderOpenAI, "OPENAI_API_KEY", "OPENAI_BASE_URL")
	c.applyProviderEnv(ProviderAnthropic, "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL")
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Accounting.RedisURL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Events.NATSURL = v
	}
	if v := os.Getenv("HYBRID_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
}

// applyProviderEnv sets the key and base URL of whichever model, primary or
// fallback, uses provider. An empty primary provider counts as OpenAI.
func (c *Config) applyProviderEnv(provider, keyVar, urlVar string) {
	key, url := os.Getenv(keyVar), os.Getenv(urlVar)
	primary := c.LLM.Provider
	if primary == "" {
		primary = ProviderOpenAI
	}
	if primary == provider {
		if key != "" {
			c.LLM.APIKey = key
		}
		if url != "" {
			c.LLM.BaseURL = url
		}
	}
	if c.LLM.Fallback.Provider == provider && c.LLM.Fallback.Provider != primary {
		if key != "" {
			c.LLM.Fallback.APIKey = key
		}
		if url != "" {
			c.LLM.Fallback.BaseURL = url
		}
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var problems []string
	negative := map[string]int{
		"browser.slowMoMs":            c.Browser.SlowMoMs,
		"browser.navigationTimeoutMs": c.Browser.NavigationTimeoutMs,
		"resolver.nominalTimeoutMs":   c.Resolver.NominalTimeoutMs,
		"resolver.totalBudgetMs":      c.Resolver.TotalBudgetMs,
		"stability.baseMs":            c.Stability.BaseMs,
		"stability.submitClickMs":     c.Stability.SubmitClickMs,
		"stability.clickMs":           c.Stability.ClickMs,
		"stability.inputMs":           c.Stability.InputMs,
		"stability.navigationMs":      c.Stability.NavigationMs,
		"stability.networkIdleMs":     c.Stability.NetworkIdleMs,
		"agent.fullRunMaxSteps":       c.Agent.FullRunMaxSteps,
		"agent.stepMaxSteps":          c.Agent.StepMaxSteps,
		"llm.maxTokens":               c.LLM.MaxTokens,
		"llm.timeoutMs":               c.LLM.TimeoutMs,
	}
	for _, key := range sortedKeys(negative) {
		if negative[key] < 0 {
			problems = append(problems, fmt.Sprintf("%s must not be negative", key))
		}
	}
	if c.Agent.FailureBehavior != "" && !gherkin.FailureBehavior(c.Agent.FailureBehavior).Valid() {
		problems = append(problems, fmt.Sprintf("unknown agent.failureBehavior %q", c.Agent.FailureBehavior))
	}
	if c.LLM.Provider != "" && !knownProvider(c.LLM.Provider) {
		problems = append(problems, fmt.Sprintf("unsupported llm.provider %q (use %q or %q; %q with llm.baseURL covers compatible endpoints)",
			c.LLM.Provider, ProviderOpenAI, ProviderAnthropic, ProviderOpenAI))
	}
	if p := c.LLM.Fallback.Provider; p != "" && !knownProvider(p) {
		problems = append(problems, fmt.Sprintf("unsupported llm.fallback.provider %q", p))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		problems = append(problems, "llm.temperature must be between 0 and 2")
	}
	if len(problems) == 0 {
		return nil
	}
	return core.ErrInvalidConfig.WithMessage(strings.Join(problems, "; "))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ms converts a millisecond setting to a duration.
func Ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
