package classify

import (
	"regexp"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

// TableVersion identifies the default rule set. Bump it whenever a pattern
// is added, removed or reordered.
const TableVersion = "2025.1"

// MarkerKind names an explicit marker syntax.
type MarkerKind string

const (
	MarkerStepResult MarkerKind = "step_result"
	MarkerAssertion  MarkerKind = "assertion"
	MarkerStepFailed MarkerKind = "step_failed"
)

// MarkerRule extracts explicit per-step results. Pattern must capture the
// status in group Status (0 = fixed FAILED) and the description in group Desc.
type MarkerRule struct {
	Kind    MarkerKind
	Pattern *regexp.Regexp
	Status  int
	Desc    int
}

// KeywordRule is a phrase that decides the overall verdict.
type KeywordRule struct {
	Name    string
	Pattern *regexp.Regexp
	Verdict core.StepStatus
}

// StepRefRule captures a 1-based step number named by a failure line.
type StepRefRule struct {
	Pattern *regexp.Regexp
	Basis   core.Basis
}

// Table is the complete rule set the classifier runs.
type Table struct {
	Version string
	Markers []MarkerRule
	Failure []KeywordRule // Any match forces overall FAILED
	Success []KeywordRule
	// StepRefs pin a failure to a numbered step.
	StepRefs []StepRefRule
	// Details extract human failure text from group 1, in priority order.
	Details []*regexp.Regexp
}

func kw(name, pattern string, verdict core.StepStatus) KeywordRule {
	return KeywordRule{Name: name, Pattern: regexp.MustCompile(`(?i)` + pattern), Verdict: verdict}
}

var defaultTable = &Table{
	Version: TableVersion,
	Markers: []MarkerRule{
		{Kind: MarkerStepResult, Pattern: regexp.MustCompile(`(?i)STEP_RESULT:\s*(PASSED|FAILED)\s*-\s*(.+?)\s*$`), Status: 1, Desc: 2},
		// Upper-case only, so prose like "Assertion failed at step 2" is not a marker.
		{Kind: MarkerAssertion, Pattern: regexp.MustCompile(`\bASSERTION\s+(PASSED|FAILED)\b:?\s*-?\s*(.+?)\s*$`), Status: 1, Desc: 2},
		{Kind: MarkerStepFailed, Pattern: regexp.MustCompile(`(?i)STEP_FAILED:\s*(.+?)\s*$`), Desc: 1},
	},
	Failure: []KeywordRule{
		kw("execution_stopped", `execution stopped.*due to.*failure`, core.StatusFailed),
		kw("authentication_error", `authentication error`, core.StatusFailed),
		kw("assertion_failed_at_step", `assertion failed at step \d+`, core.StatusFailed),
		kw("login_attempt_failed", `login attempt failed`, core.StatusFailed),
		kw("critical_failure", `critical.*failure`, core.StatusFailed),
		kw("unable_to_proceed", `unable to proceed`, core.StatusFailed),
		kw("completed_without_success", `task completed without success`, core.StatusFailed),
		kw("blocker", `blocker encountered`, core.StatusFailed),
		kw("task_failed", `\btask failed\b`, core.StatusFailed),
	},
	Success: []KeywordRule{
		kw("task_completed", `task completed successfully`, core.StatusPassed),
		kw("all_steps_completed", `all steps (completed|executed) successfully`, core.StatusPassed),
		kw("all_assertions_passed", `all assertions passed`, core.StatusPassed),
		kw("successfully_completed", `successfully completed`, core.StatusPassed),
		kw("scenario_completed", `scenario (execution )?completed`, core.StatusPassed),
		kw("actions_completed", `actions were completed successfully`, core.StatusPassed),
		kw("ready_to_close", `ready to close browser`, core.StatusPassed),
		kw("final_status_passed", `final status:\s*passed`, core.StatusPassed),
		kw("test_passed", `\btest passed\b`, core.StatusPassed),
		kw("numbered_completed", `\d+\.\s+.*completed.*successfully`, core.StatusPassed),
	},
	StepRefs: []StepRefRule{
		{Pattern: regexp.MustCompile(`(?i)assertion failed at step (\d+)`), Basis: core.BasisExplicit},
		{Pattern: regexp.MustCompile(`(?i)(?:stopped|failed) at step (\d+)`), Basis: core.BasisKeyword},
	},
	Details: []*regexp.Regexp{
		regexp.MustCompile(`(?i)Authentication Error:\s*(.+)`),
		regexp.MustCompile(`(?i)Assertion failed at step \d+:\s*(.+)`),
		regexp.MustCompile(`(?i)Login attempt failed:\s*(.+)`),
		regexp.MustCompile(`(?i)Failure Details?:\s*(.+)`),
	},
}

// DefaultTable returns the built-in rule set. Callers must not modify it.
func DefaultTable() *Table {
	return defaultTable
}
