package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
)

// Providers the built-in clients speak.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Model is a completion client that reports its name and token usage.
type Model interface {
	core.LanguageModel
	core.ModelNamer
	CompleteWithUsage(ctx context.Context, prompt string) (string, int64, int64, error)
}

// NewProvider returns the client for provider. An empty provider means
// OpenAI, which also covers OpenAI-compatible endpoints via BaseURL.
func NewProvider(provider string, cfg Config) (Model, error) {
	switch provider {
	case "", ProviderOpenAI:
		return New(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported llm provider %q", provider))
	}
}

// Fallback answers from Primary and retries once on Secondary when
// Primary fails. A done context is returned as is.
type Fallback struct {
	Primary   core.LanguageModel
	Secondary core.LanguageModel
}

// ModelName names the primary model.
func (f *Fallback) ModelName() string {
	if n, ok := f.Primary.(core.ModelNamer); ok {
		return n.ModelName()
	}
	return ""
}

// Complete implements core.LanguageModel.
func (f *Fallback) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := f.Primary.Complete(ctx, prompt)
	if err == nil || f.Secondary == nil {
		return text, err
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return "", err
	}
	logger.Warn("llm: primary model failed, using fallback: %v", err)
	text, ferr := f.Secondary.Complete(ctx, prompt)
	if ferr != nil {
		return "", core.ErrAgentInvocation.WithMessage("primary and fallback models failed").WithCause(errors.Join(err, ferr))
	}
	return text, nil
}
