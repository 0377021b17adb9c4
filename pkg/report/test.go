package report

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/classify"
	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/orchestrator"
)

// TestWriter writes updates for a single test.
// Each worker owns its TestWriter; no locking needed.
type TestWriter struct {
	test  *TestDetail
	path  string
	index *IndexWriter
}

// NewTestWriter creates a TestWriter for one test detail.
func NewTestWriter(detail *TestDetail, outputDir string, index *IndexWriter) *TestWriter {
	return &TestWriter{
		test:  detail,
		path:  filepath.Join(outputDir, "tests", detail.ID+".json"),
		index: index,
	}
}

// Start marks the test as running.
func (w *TestWriter) Start() {
	now := time.Now()
	w.test.StartTime = now
	w.test.Status = StatusRunning

	w.flush()
	w.index.UpdateTest(w.test.ID, &TestUpdate{Status: StatusRunning, StartTime: &now})
}

// Finish records the orchestrator's result and marks the test terminal.
func (w *TestWriter) Finish(res *orchestrator.TestResult) {
	now := time.Now()
	t := w.test
	t.EndTime = &now
	duration := now.Sub(t.StartTime).Milliseconds()
	t.Duration = &duration

	t.RunID = res.RunID
	t.ExecutionMethod = res.ExecutionMethod
	t.ScriptPath = res.ScriptPath
	t.ScriptVersion = res.ScriptVersion
	t.WorkflowUpdated = res.WorkflowUpdated
	t.CaptureMethod = res.CaptureMethod
	t.FallbackSteps = res.FallbackSteps
	t.Steps = make([]StepReport, 0, len(res.StepResults))
	for _, o := range res.StepResults {
		t.Steps = append(t.Steps, stepReport(o))
	}

	t.Status = StatusPassed
	var errMsg *string
	if !res.Success {
		t.Status = StatusFailed
		t.Error = failureError(res)
		errMsg = &t.Error.Message
	}

	w.flush()
	w.index.UpdateTest(t.ID, &TestUpdate{
		Status:          t.Status,
		RunID:           t.RunID,
		ExecutionMethod: t.ExecutionMethod,
		EndTime:         &now,
		Duration:        &duration,
		Steps:           w.stepSummary(),
		FallbackSteps:   t.FallbackSteps,
		WorkflowUpdated: t.WorkflowUpdated,
		Error:           errMsg,
	})
}

// Skip marks a test that never ran.
func (w *TestWriter) Skip(reason string) {
	w.test.Status = StatusSkipped
	w.test.Error = &Error{Type: "skipped", Message: reason}
	w.flush()
	w.index.UpdateTest(w.test.ID, &TestUpdate{Status: StatusSkipped, Error: &reason})
}

// Detail returns the test detail being written.
func (w *TestWriter) Detail() *TestDetail {
	return w.test
}

func (w *TestWriter) flush() {
	if err := atomicWriteJSON(w.path, w.test); err != nil {
		logger.Warn("report %s not written: %v", w.path, err)
	}
}

func (w *TestWriter) stepSummary() StepSummary {
	s := StepSummary{Total: len(w.test.Steps), Fallback: len(w.test.FallbackSteps)}
	for _, st := range w.test.Steps {
		if strings.HasSuffix(st.Status, inferredSuffix) {
			s.Inferred++
		}
		if strings.HasPrefix(st.Status, core.StatusFailed.String()) {
			s.Failed++
		} else {
			s.Passed++
		}
	}
	return s
}

func stepReport(o core.StepOutcome) StepReport {
	return StepReport{
		Index:       o.StepIndex,
		Description: o.Description,
		Status:      StatusLabel(o.Status, o.Inferred),
		Method:      string(o.ExecutionMethod),
		Basis:       string(o.Basis),
		Locator:     o.Locator,
		Message:     o.Message,
		NoOp:        o.NoOp,
		Duration:    o.Duration.Milliseconds(),
	}
}

const inferredSuffix = " (inferred)"

// StatusLabel renders a step status, marking positional verdicts.
func StatusLabel(s core.StepStatus, inferred bool) string {
	if inferred {
		return s.String() + inferredSuffix
	}
	return s.String()
}

func failureError(res *orchestrator.TestResult) *Error {
	category := classify.Category(res.FailureCategory)
	if category == "" {
		category = classify.CategoryGeneral
	}
	msg := res.FailureDetails
	if msg == "" {
		msg = res.Error
	}
	return &Error{Type: string(category), Label: category.Label(), Message: msg}
}
