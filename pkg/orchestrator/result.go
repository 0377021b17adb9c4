package orchestrator

import (
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

// Execution methods reported for a whole run.
const (
	MethodAgentFull          = "agent_full"
	MethodReplay             = "replay"
	MethodReplayWithFallback = "replay_with_fallback"
)

// Request asks for one test run.
type Request struct {
	TestPath   string
	ForceAgent bool
	Inputs     map[string]interface{}
	RunID      string // Generated when empty
}

// TestResult is the outcome of RunTest.
type TestResult struct {
	RunID           string             `json:"run_id"`
	TestPath        string             `json:"test_path"`
	Success         bool               `json:"success"`
	ExecutionMethod string             `json:"execution_method"`
	StepResults     []core.StepOutcome `json:"step_results"`
	FallbackSteps   []int              `json:"fallback_steps"`
	WorkflowUpdated bool               `json:"workflow_updated"`
	ScriptPath      string             `json:"script_path"`
	ScriptVersion   string             `json:"script_version,omitempty"`
	CaptureMethod   string             `json:"capture_method,omitempty"`
	FailureDetails  string             `json:"failure_details,omitempty"`
	FailureCategory string             `json:"failure_category,omitempty"`
	Error           string             `json:"error,omitempty"`
	StartedAt       time.Time          `json:"started_at"`
	Duration        time.Duration      `json:"duration_ns"`
}

// RunResult returns the core view of the result.
func (r *TestResult) RunResult() *core.RunResult {
	return &core.RunResult{
		OverallSuccess:      r.Success,
		StepOutcomes:        r.StepResults,
		FallbackStepIndices: r.FallbackSteps,
		ScriptUpdated:       r.WorkflowUpdated,
		FailureDetails:      r.FailureDetails,
	}
}

func (r *TestResult) addFallback(idx int) {
	rr := core.RunResult{FallbackStepIndices: r.FallbackSteps}
	rr.AddFallback(idx)
	r.FallbackSteps = rr.FallbackStepIndices
}

func (r *TestResult) fail(err error) {
	r.Success = false
	if err != nil {
		r.Error = err.Error()
		if r.FailureDetails == "" {
			r.FailureDetails = err.Error()
		}
	}
}
