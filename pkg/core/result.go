package core

import (
	"sort"
	"time"
)

// Basis records how a verdict was reached.
type Basis string

const (
	BasisExecution  Basis = "execution"  // Observed by running the step
	BasisExplicit   Basis = "explicit"   // STEP_RESULT / ASSERTION marker in narration
	BasisKeyword    Basis = "keyword"    // Overall failure/success phrase
	BasisPositional Basis = "positional" // Position relative to the stopping point
)

// StepOutcome is the result of executing or classifying one step
type StepOutcome struct {
	StepIndex       int             `json:"step_index"`
	Description     string          `json:"description,omitempty"`
	Status          StepStatus      `json:"status"`
	Message         string          `json:"message,omitempty"`
	ExecutionMethod ExecutionMethod `json:"execution_method,omitempty"`
	Basis           Basis           `json:"basis,omitempty"`
	Inferred        bool            `json:"inferred,omitempty"`
	Locator         string          `json:"locator,omitempty"` // Selector the element resolved with
	NoOp            bool            `json:"no_op,omitempty"`
	Duration        time.Duration   `json:"duration_ns,omitempty"`
	Err             error           `json:"-"`
}

// DisplayStatus returns StatusInferred for positional verdicts, Status otherwise.
func (o StepOutcome) DisplayStatus() StepStatus {
	if o.Inferred {
		return StatusInferred
	}
	return o.Status
}

// RunResult aggregates step outcomes for one run
type RunResult struct {
	OverallSuccess      bool          `json:"overall_success"`
	StepOutcomes        []StepOutcome `json:"step_outcomes"`
	FallbackStepIndices []int         `json:"fallback_step_indices"`
	ScriptUpdated       bool          `json:"script_updated"`
	FailureDetails      string        `json:"failure_details,omitempty"`
}

// AddFallback records that step idx was completed by the agent.
// Indices stay sorted and unique.
func (r *RunResult) AddFallback(idx int) {
	for _, i := range r.FallbackStepIndices {
		if i == idx {
			return
		}
	}
	r.FallbackStepIndices = append(r.FallbackStepIndices, idx)
	sort.Ints(r.FallbackStepIndices)
}

// FirstFailure returns the first failed outcome, or nil.
func (r *RunResult) FirstFailure() *StepOutcome {
	for i := range r.StepOutcomes {
		if r.StepOutcomes[i].Status == StatusFailed {
			return &r.StepOutcomes[i]
		}
	}
	return nil
}

// Counts returns the number of passed and failed outcomes.
func (r *RunResult) Counts() (passed, failed int) {
	for _, o := range r.StepOutcomes {
		switch o.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		}
	}
	return passed, failed
}
