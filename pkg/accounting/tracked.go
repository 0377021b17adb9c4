package accounting

import (
	"context"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
)

// UsageReporter is implemented by models that report exact token counts.
type UsageReporter interface {
	CompleteWithUsage(ctx context.Context, prompt string) (text string, inputTokens, outputTokens int64, err error)
}

// TrackedModel records every completion of Model into Sink.
type TrackedModel struct {
	Model core.LanguageModel
	Sink  Sink
	Name  string // Overrides the model's own name
}

// Track wraps model.
func Track(model core.LanguageModel, sink Sink) *TrackedModel {
	return &TrackedModel{Model: model, Sink: sink}
}

// ModelName returns the name usage is recorded under.
func (t *TrackedModel) ModelName() string {
	if t.Name != "" {
		return t.Name
	}
	if n, ok := t.Model.(core.ModelNamer); ok {
		return n.ModelName()
	}
	return DefaultModel
}

// Complete forwards to the wrapped model. Models that don't report usage
// are estimated at four characters per token. A failed Record is logged
// and never fails the completion.
func (t *TrackedModel) Complete(ctx context.Context, prompt string) (string, error) {
	var (
		text    string
		in, out int64
		err     error
	)
	if r, ok := t.Model.(UsageReporter); ok {
		text, in, out, err = r.CompleteWithUsage(ctx, prompt)
	} else {
		text, err = t.Model.Complete(ctx, prompt)
		in, out = EstimateTokens(prompt), EstimateTokens(text)
	}
	if err != nil {
		return "", err
	}
	if t.Sink != nil {
		u := Usage{Model: t.ModelName(), InputTokens: in, OutputTokens: out}
		if rerr := t.Sink.Record(ctx, u); rerr != nil {
			logger.Warn("token accounting: %v", rerr)
		}
	}
	return text, nil
}

// EstimateTokens approximates a token count from text length.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	return int64(len(text)+3) / 4
}
