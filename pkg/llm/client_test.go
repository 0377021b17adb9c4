package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

func TestCompleteWithUsage(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Feature: X"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-4", Temperature: 0.1, MaxTokens: 256})
	text, in, out, err := c.CompleteWithUsage(context.Background(), "translate this")
	if err != nil {
		t.Fatalf("CompleteWithUsage() error = %v", err)
	}
	if text != "Feature: X" || in != 12 || out != 3 {
		t.Errorf("CompleteWithUsage() = %q, %d, %d", text, in, out)
	}
	if got.Model != "gpt-4" || got.MaxTokens != 256 || len(got.Messages) != 1 || got.Messages[0].Content != "translate this" {
		t.Errorf("request = %+v", got)
	}
	if c.ModelName() != "gpt-4" {
		t.Errorf("ModelName() = %q", c.ModelName())
	}
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`},
		{"api error", http.StatusOK, `{"error":{"message":"bad model"}}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}).Complete(context.Background(), "x")
			if !errors.Is(err, core.ErrAgentInvocation) {
				t.Errorf("error = %v, want ErrAgentInvocation", err)
			}
		})
	}
}

func TestComplete_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := New(Config{BaseURL: url}).Complete(context.Background(), "x"); !errors.Is(err, core.ErrAgentInvocation) {
		t.Errorf("error = %v, want ErrAgentInvocation", err)
	}
}
