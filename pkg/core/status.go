package core

import "encoding/json"

// StepStatus represents the verdict for a single step
type StepStatus int

const (
	StatusPending  StepStatus = iota // Not yet executed or classified
	StatusPassed                     // Step completed
	StatusFailed                     // Step failed (replay, agent or classified)
	StatusInferred                   // Verdict derived positionally, not observed
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusInferred:
		return "inferred"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	return s != StatusPending
}

// IsSuccess returns true if the step passed
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed
}

// MarshalJSON encodes the status as its string form.
func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form written by MarshalJSON.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "passed":
		*s = StatusPassed
	case "failed":
		*s = StatusFailed
	case "inferred":
		*s = StatusInferred
	default:
		*s = StatusPending
	}
	return nil
}

// ExecutionMethod records which engine produced a step outcome
type ExecutionMethod string

const (
	MethodReplay        ExecutionMethod = "replay"
	MethodAgentFallback ExecutionMethod = "agent_fallback"
	MethodAgent         ExecutionMethod = "agent"
	MethodClassified    ExecutionMethod = "classified"
)

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone        ErrorCategory = iota // No error
	ErrCategoryAssertion                        // Element or option not found
	ErrCategoryTimeout                          // Resolution or settle window exceeded
	ErrCategoryConnection                       // Browser or LLM endpoint unreachable
	ErrCategoryAgent                            // Autonomous agent failed or returned nothing
	ErrCategoryPersistence                      // Script could not be written back
	ErrCategoryConfig                           // Invalid configuration or input document
	ErrCategoryCapture                          // Captured step unusable
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryAgent:
		return "agent"
	case ErrCategoryPersistence:
		return "persistence"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryCapture:
		return "capture"
	default:
		return "unknown"
	}
}
