// Package llm holds LanguageModel clients for OpenAI-compatible
// chat-completion endpoints (OpenAI, OpenRouter, Ollama, vLLM) and the
// Anthropic Messages API.
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

// DefaultBaseURL is used when Config.BaseURL is empty.
const DefaultBaseURL = "https://api.openai.com/v1"

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client calls POST {BaseURL}/chat/completions.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ModelName returns the configured model.
func (c *Client) ModelName() string {
	return c.cfg.Model
}

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	text, _, _, err := c.CompleteWithUsage(ctx, prompt)
	return text, err
}

// CompleteWithUsage is Complete plus the token counts the endpoint
// reported (zero when it reported none).
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string) (string, int64, int64, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
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

	var parsed chatResponse
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
	if len(parsed.Choices) == 0 {
		return "", 0, 0, core.ErrAgentInvocation.WithMessage("no response from LLM")
	}

	var in, out int64
	if parsed.Usage != nil {
		in, out = parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens
	}
	return parsed.Choices[0].Message.Content, in, out, nil
}
