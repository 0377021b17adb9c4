package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
browser:
  headless: false
  slowMoMs: 50
resolver:
  nominalTimeoutMs: 2000
  totalBudgetMs: 8000
stability:
  submitClickMs: 1000
agent:
  failureBehavior: continue
llm:
  model: gpt-4o-mini
  baseURL: http://localhost:11434/v1
accounting:
  redisURL: redis://localhost:6379/0
env:
  USER: test
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Browser.Headless || cfg.Browser.SlowMoMs != 50 {
		t.Errorf("browser = %+v", cfg.Browser)
	}
	if cfg.Browser.ViewportWidth != 1280 {
		t.Errorf("viewportWidth = %d, want default 1280", cfg.Browser.ViewportWidth)
	}
	if cfg.Resolver.NominalTimeoutMs != 2000 || cfg.Resolver.TotalBudgetMs != 8000 {
		t.Errorf("resolver = %+v", cfg.Resolver)
	}
	if cfg.Stability.SubmitClickMs != 1000 || cfg.Stability.ClickMs != 1500 {
		t.Errorf("stability = %+v", cfg.Stability)
	}
	if cfg.Agent.FailureBehavior != "continue" || cfg.Agent.FullRunMaxSteps != 50 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.LLM.Model != "gpt-4o-mini" || cfg.LLM.Provider != ProviderOpenAI || cfg.LLM.Temperature != 0.1 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Accounting.KeyPrefix != "token_usage" || cfg.Accounting.RedisURL == "" {
		t.Errorf("accounting = %+v", cfg.Accounting)
	}
	if cfg.Env["USER"] != "test" {
		t.Errorf("env = %v", cfg.Env)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("browser: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFromDir(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		model string
	}{
		{"yaml", "config.yaml", "from-yaml"},
		{"yml", "config.yml", "from-yml"},
		{"none", "", "gpt-4o"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				body := "llm:\n  model: " + tt.model + "\n"
				if err := os.WriteFile(filepath.Join(dir, tt.file), []byte(body), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			cfg, err := LoadFromDir(dir)
			if err != nil {
				t.Fatalf("LoadFromDir() error = %v", err)
			}
			if cfg.LLM.Model != tt.model {
				t.Errorf("model = %q, want %q", cfg.LLM.Model, tt.model)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("AI_MODEL", "gpt-4")
	t.Setenv("AI_TEMPERATURE", "0.5")
	t.Setenv("AI_MAX_TOKENS", "not-a-number")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://llm.local/v1")
	t.Setenv("REDIS_URL", "redis://r:6379")
	t.Setenv("NATS_URL", "nats://n:4222")
	t.Setenv("HYBRID_HEADLESS", "false")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4" || cfg.LLM.Temperature != 0.5 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.MaxTokens != 0 {
		t.Errorf("MaxTokens = %d, want unparsable value ignored", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.APIKey != "sk-test" || cfg.LLM.BaseURL != "http://llm.local/v1" {
		t.Errorf("llm endpoint = %+v", cfg.LLM)
	}
	if cfg.Accounting.RedisURL != "redis://r:6379" || cfg.Events.NATSURL != "nats://n:4222" {
		t.Errorf("backends = %+v %+v", cfg.Accounting, cfg.Events)
	}
	if cfg.Browser.Headless {
		t.Error("Headless = true, want false from HYBRID_HEADLESS")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("HYBRID_TEST_FROM_DOTENV=yes\nHYBRID_TEST_PRESET=file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HYBRID_TEST_FROM_DOTENV", "")
	os.Unsetenv("HYBRID_TEST_FROM_DOTENV")
	t.Setenv("HYBRID_TEST_PRESET", "process")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("HYBRID_TEST_FROM_DOTENV"); got != "yes" {
		t.Errorf("HYBRID_TEST_FROM_DOTENV = %q, want yes", got)
	}
	if got := os.Getenv("HYBRID_TEST_PRESET"); got != "process" {
		t.Errorf("HYBRID_TEST_PRESET = %q, want the process value kept", got)
	}
}

func TestApplyEnv_AnthropicWithFallback(t *testing.T) {
	for _, k := range []string{"LLM_PROVIDER", "AI_MODEL", "LLM_MODEL", "OPENAI_BASE_URL", "ANTHROPIC_BASE_URL"} {
		t.Setenv(k, "")
	}
	t.Setenv("AI_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OPENAI_API_KEY", "sk-oai")
	t.Setenv("AI_FALLBACK_PROVIDER", "openai")
	t.Setenv("AI_FALLBACK_MODEL", "gpt-4o-mini")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.LLM.Provider != ProviderAnthropic || cfg.LLM.Model != "claude-3-5-sonnet-20241022" {
		t.Errorf("llm = %s/%s, want anthropic default model", cfg.LLM.Provider, cfg.LLM.Model)
	}
	if cfg.LLM.APIKey != "sk-ant" {
		t.Errorf("APIKey = %q, want sk-ant", cfg.LLM.APIKey)
	}
	f := cfg.LLM.ResolvedFallback()
	if f.Provider != ProviderOpenAI || f.Model != "gpt-4o-mini" || f.APIKey != "sk-oai" {
		t.Errorf("fallback = %+v", f)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestResolvedFallback_InheritsSameProvider(t *testing.T) {
	l := LLMConfig{Provider: ProviderOpenAI, APIKey: "sk", BaseURL: "http://gw/v1", Fallback: FallbackLLMConfig{Model: "gpt-4o-mini"}}
	f := l.ResolvedFallback()
	if f.Provider != ProviderOpenAI || f.APIKey != "sk" || f.BaseURL != "http://gw/v1" {
		t.Errorf("ResolvedFallback() = %+v", f)
	}

	l.Fallback.Provider = ProviderAnthropic
	if f := l.ResolvedFallback(); f.APIKey != "" || f.BaseURL != "" {
		t.Errorf("cross-provider fallback inherited credentials: %+v", f)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"negative timeout", func(c *Config) { c.Resolver.NominalTimeoutMs = -1 }, "resolver.nominalTimeoutMs"},
		{"negative stability", func(c *Config) { c.Stability.ClickMs = -5 }, "stability.clickMs"},
		{"bad behavior", func(c *Config) { c.Agent.FailureBehavior = "retry" }, `unknown agent.failureBehavior "retry"`},
		{"bedrock", func(c *Config) { c.LLM.Provider = "bedrock" }, `unsupported llm.provider "bedrock"`},
		{"anthropic", func(c *Config) { c.LLM.Provider = ProviderAnthropic }, ""},
		{"bad fallback", func(c *Config) { c.LLM.Fallback = FallbackLLMConfig{Provider: "google", Model: "gemini"} }, `unsupported llm.fallback.provider "google"`},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, core.ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}
