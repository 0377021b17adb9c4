package core

import (
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, step_timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context (selector, step index, path)
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	msg := e.Message
	if sel, ok := e.Details["selector"].(string); ok && sel != "" {
		msg = fmt.Sprintf("%s (selector: %s)", msg, sel)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches any ExecutionError carrying the same code, so copies made
// through the With* helpers still match their sentinel.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Selector returns the selector recorded in Details, if any.
func (e *ExecutionError) Selector() string {
	sel, _ := e.Details["selector"].(string)
	return sel
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// WithSelector records the selector a failure refers to, truncated for display.
func (e *ExecutionError) WithSelector(selector string) *ExecutionError {
	return e.WithDetails(map[string]interface{}{"selector": TruncateSelector(selector)})
}

// MaxSelectorDisplay is the number of selector characters kept in messages.
const MaxSelectorDisplay = 35

// TruncateSelector shortens long generated selectors for logs and errors.
func TruncateSelector(selector string) string {
	r := []rune(selector)
	if len(r) <= MaxSelectorDisplay {
		return selector
	}
	return string(r[:MaxSelectorDisplay]) + "..."
}

// Predefined errors
var (
	// Assertion errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_found",
		Message:  "failed to find element",
	}
	ErrOptionNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "option_not_found",
		Message:  "no option with matching label",
	}

	// Timeout errors
	ErrStepTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "step_timeout",
		Message:  "step exceeded its time budget",
	}

	// Driver errors
	ErrDriver = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "driver_error",
		Message:  "browser driver call failed",
	}

	// Agent errors
	ErrAgentInvocation = &ExecutionError{
		Category: ErrCategoryAgent,
		Code:     "agent_invocation_failed",
		Message:  "autonomous agent failed",
	}

	// Persistence errors
	ErrScriptPersistence = &ExecutionError{
		Category: ErrCategoryPersistence,
		Code:     "script_persistence_failed",
		Message:  "failed to persist script",
	}
	ErrScriptInUse = &ExecutionError{
		Category: ErrCategoryPersistence,
		Code:     "script_in_use",
		Message:  "another run holds this script",
	}

	// Capture errors
	ErrInvalidStepDescriptor = &ExecutionError{
		Category: ErrCategoryCapture,
		Code:     "invalid_step_descriptor",
		Message:  "step has no usable locator",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrInvalidScenario = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_scenario",
		Message:  "scenario is not valid Gherkin",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}
