package accounting

import (
	"context"
	"sort"
	"sync"
)

// Usage is one language-model call.
type Usage struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// ModelUsage is the running total for one model.
type ModelUsage struct {
	Calls        int64   `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Summary is the accumulated usage across all models.
type Summary struct {
	TotalCalls   int64                 `json:"total_calls"`
	InputTokens  int64                 `json:"input_tokens"`
	OutputTokens int64                 `json:"output_tokens"`
	TotalCost    float64               `json:"total_cost"`
	Models       map[string]ModelUsage `json:"models"`
}

// ModelNames returns the models in the summary, sorted.
func (s *Summary) ModelNames() []string {
	names := make([]string, 0, len(s.Models))
	for n := range s.Models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func newSummary(models map[string]ModelUsage) *Summary {
	s := &Summary{Models: make(map[string]ModelUsage, len(models))}
	for name, m := range models {
		m.Cost = Cost(name, m.InputTokens, m.OutputTokens)
		s.Models[name] = m
		s.TotalCalls += m.Calls
		s.InputTokens += m.InputTokens
		s.OutputTokens += m.OutputTokens
		s.TotalCost += m.Cost
	}
	return s
}

// Sink accumulates usage. Implementations accept concurrent Record calls.
type Sink interface {
	Record(ctx context.Context, u Usage) error
	Summary(ctx context.Context) (*Summary, error)
}

// MemorySink keeps totals in process memory.
type MemorySink struct {
	mu     sync.Mutex
	models map[string]ModelUsage
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{models: make(map[string]ModelUsage)}
}

// Record adds one call.
func (s *MemorySink) Record(_ context.Context, u Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.models[modelKey(u.Model)]
	m.Calls++
	m.InputTokens += u.InputTokens
	m.OutputTokens += u.OutputTokens
	s.models[modelKey(u.Model)] = m
	return nil
}

// Summary returns a snapshot of the totals.
func (s *MemorySink) Summary(_ context.Context) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newSummary(s.models), nil
}

func modelKey(model string) string {
	if model == "" {
		return DefaultModel
	}
	return model
}
