package core

import "context"

// Action is one primitive action recorded by an autonomous agent.
type Action struct {
	Name    string                 `json:"name"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Element *ElementDescriptor     `json:"element,omitempty"` // Element the action interacted with
}

// ActionTrace is what an agent run leaves behind: the structured actions
// and the free-text narration, both in execution order.
type ActionTrace struct {
	Actions   []Action `json:"actions"`
	Narration []string `json:"narration"`
}

// IsEmpty reports whether the trace carries no actions and no narration.
func (t *ActionTrace) IsEmpty() bool {
	return t == nil || (len(t.Actions) == 0 && len(t.Narration) == 0)
}

// AutonomousAgent performs a natural-language task in the browser.
// Runs are bounded by maxSteps primitive actions.
type AutonomousAgent interface {
	Run(ctx context.Context, task string, maxSteps int) (*ActionTrace, error)
}

// LanguageModel is a synchronous prompt completion capability.
type LanguageModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelNamer is implemented by models that can report their model name,
// used for cost accounting.
type ModelNamer interface {
	ModelName() string
}
