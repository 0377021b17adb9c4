package gherkin

import (
	"fmt"
)

// FailureBehavior tells the agent what to do when a step fails.
type FailureBehavior string

const (
	StopOnFirst     FailureBehavior = "stop_on_first"
	Continue        FailureBehavior = "continue"
	StopOnAssertion FailureBehavior = "stop_on_assertion"
)

// Valid reports whether b is a known behavior.
func (b FailureBehavior) Valid() bool {
	switch b {
	case StopOnFirst, Continue, StopOnAssertion:
		return true
	}
	return false
}

func (b FailureBehavior) instruction() string {
	switch b {
	case StopOnFirst:
		return "Stop immediately on any step failure, action or assertion."
	case Continue:
		return "Keep going when a step fails and attempt every step."
	default:
		return "Continue past action failures but stop on the first assertion failure."
	}
}

// BrowserTask builds the agent instruction for a scenario. It asks for the
// STEP_RESULT and ASSERTION marker lines the classifier reads.
func BrowserTask(scenario string, behavior FailureBehavior) string {
	return fmt.Sprintf(`Execute this Gherkin scenario in the browser, one step at a time.

%s

Use URLs and values exactly as written.
After each step print one line: "STEP_RESULT: PASSED - <what happened>" or "STEP_RESULT: FAILED - <reason>".
For each Then check also print "ASSERTION PASSED: <check>" or "ASSERTION FAILED: <check> - expected <x>, got <y>".
If a step cannot be completed print "STEP_FAILED: <step text> - <reason>".
%s
Finish with "Task completed successfully" only if every step passed.`, "```gherkin\n"+scenario+"\n```", behavior.instruction())
}
