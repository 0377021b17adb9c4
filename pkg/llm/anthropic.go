package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
)

const (
	// DefaultAnthropicBaseURL is used when an Anthropic Config has no BaseURL.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"

	// AnthropicVersion is sent as the anthropic-version header.
	AnthropicVersion = "2023-06-01"

	// defaultAnthropicMaxTokens fills the max_tokens the Messages API requires.
	defaultAnthropicMaxTokens = 4096
)

// AnthropicClient calls POST {BaseURL}/v1/messages.
type AnthropicClient struct {
	cfg  Config
	http *http.Client
}

// NewAnthropic creates a Messages API client.
func NewAnthropic(cfg Config) *AnthropicClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ModelName returns the configured model.
func (c *AnthropicClient) ModelName() string {
	return c.cfg.Model
}

// Complete sends prompt as a single user message.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	text, _, _, err := c.CompleteWithUsage(ctx, prompt)
	return text, err
}

// CompleteWithUsage is Complete plus the reported token counts. Text
// blocks of the reply are concatenated.
func (c *AnthropicClient) CompleteWithUsage(ctx context.Context, prompt string) (string, int64, int64, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages:    []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", AnthropicVersion)
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, 0, core.ErrAgentInvocation.WithMessage("LLM request failed").WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to read LLM response: %w", err)
	}
	logger.Debug("llm %s: status %d in %s (%d bytes)", c.cfg.Model, resp.StatusCode, time.Since(start).Round(time.Millisecond), len(data))

	var parsed messagesResponse
	if jerr := json.Unmarshal(data, &parsed); jerr != nil && resp.StatusCode == http.StatusOK {
		return "", 0, 0, fmt.Errorf("failed to parse LLM response: %w", jerr)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", 0, 0, core.ErrAgentInvocation.WithMessage(fmt.Sprintf("LLM API error (status %d): %s", resp.StatusCode, msg))
	}
	if parsed.Error != nil {
		return "", 0, 0, core.ErrAgentInvocation.WithMessage("LLM API error: " + parsed.Error.Message)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", 0, 0, core.ErrAgentInvocation.WithMessage("no response from LLM")
	}

	var in, out int64
	if parsed.Usage != nil {
		in, out = parsed.Usage.InputTokens, parsed.Usage.OutputTokens
	}
	return sb.String(), in, out, nil
}
