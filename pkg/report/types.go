// Package report provides JSON run reports with live updates.
//
// Layout:
//   - report.json: suite index (small, frequently updated, mutex-protected)
//   - tests/test-XXX.json: per-test detail files (one writer each, no lock)
//
// The index is the single source of truth for status. Consumers poll
// report.json and fetch only the test details whose updateSeq changed.
package report

import "time"

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status.
type Status string

// Status values.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusSkipped
}

// ============================================================================
// INDEX (report.json)
// ============================================================================

// Index is the suite file that binds every test report together.
type Index struct {
	Version     string      `json:"version"`
	UpdateSeq   uint64      `json:"updateSeq"`
	Status      Status      `json:"status"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     *time.Time  `json:"endTime,omitempty"`
	LastUpdated time.Time   `json:"lastUpdated"`
	Runner      RunnerInfo  `json:"runner"`
	Summary     Summary     `json:"summary"`
	Tests       []TestEntry `json:"tests"`
}

// RunnerInfo describes the runner that produced the report.
type RunnerInfo struct {
	Version  string `json:"version"`
	Browser  string `json:"browser"`
	Headless bool   `json:"headless"`
	Model    string `json:"model,omitempty"`
}

// Summary contains aggregated counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Running int `json:"running"`
	Pending int `json:"pending"`
	// Tests that needed the agent on at least one step.
	Recovered int `json:"recovered"`
}

// TestEntry is the index entry for one test.
type TestEntry struct {
	Index           int         `json:"index"`
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	SourceFile      string      `json:"sourceFile"`
	DataFile        string      `json:"dataFile"`
	Status          Status      `json:"status"`
	UpdateSeq       uint64      `json:"updateSeq"`
	RunID           string      `json:"runId,omitempty"`
	ExecutionMethod string      `json:"executionMethod,omitempty"`
	StartTime       *time.Time  `json:"startTime,omitempty"`
	EndTime         *time.Time  `json:"endTime,omitempty"`
	Duration        *int64      `json:"duration,omitempty"` // milliseconds
	LastUpdated     *time.Time  `json:"lastUpdated,omitempty"`
	Steps           StepSummary `json:"steps"`
	FallbackSteps   []int       `json:"fallbackSteps,omitempty"`
	WorkflowUpdated bool        `json:"workflowUpdated"`
	Error           *string     `json:"error,omitempty"`
}

// StepSummary contains step counts for a test.
type StepSummary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Inferred int `json:"inferred"`
	Fallback int `json:"fallback"`
}

// ============================================================================
// TEST DETAIL (tests/test-XXX.json)
// ============================================================================

// TestDetail contains one test's full execution record.
type TestDetail struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	SourceFile      string       `json:"sourceFile"`
	RunID           string       `json:"runId,omitempty"`
	Status          Status       `json:"status"`
	ExecutionMethod string       `json:"executionMethod,omitempty"`
	ScriptPath      string       `json:"scriptPath,omitempty"`
	ScriptVersion   string       `json:"scriptVersion,omitempty"`
	WorkflowUpdated bool         `json:"workflowUpdated"`
	CaptureMethod   string       `json:"captureMethod,omitempty"`
	StartTime       time.Time    `json:"startTime"`
	EndTime         *time.Time   `json:"endTime,omitempty"`
	Duration        *int64       `json:"duration,omitempty"` // milliseconds
	Steps           []StepReport `json:"steps"`
	FallbackSteps   []int        `json:"fallbackSteps,omitempty"`
	Error           *Error       `json:"error,omitempty"`
}

// StepReport is one step's outcome as shown to people.
type StepReport struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Status      string `json:"status"` // passed, failed, "passed (inferred)", ...
	Method      string `json:"method"`
	Basis       string `json:"basis,omitempty"`
	Locator     string `json:"locator,omitempty"`
	Message     string `json:"message,omitempty"`
	NoOp        bool   `json:"noOp,omitempty"`
	Duration    int64  `json:"duration"` // milliseconds
}

// Error contains failure details.
type Error struct {
	Type    string `json:"type"` // authentication, element_not_found, timeout, assertion, navigation, general
	Label   string `json:"label,omitempty"`
	Message string `json:"message"`
}

// ============================================================================
// UPDATE TYPES
// ============================================================================

// TestUpdate contains the fields to update in the index for a test.
type TestUpdate struct {
	Status          Status
	RunID           string
	ExecutionMethod string
	StartTime       *time.Time
	EndTime         *time.Time
	Duration        *int64
	Steps           StepSummary
	FallbackSteps   []int
	WorkflowUpdated bool
	Error           *string
}
