package report

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
)

// progressDebounce delays non-terminal index writes.
const progressDebounce = 100 * time.Millisecond

// IndexWriter provides thread-safe updates to the suite index.
// Test workers update it concurrently.
type IndexWriter struct {
	mu    sync.Mutex
	path  string
	index *Index

	// Debouncing for progress updates
	pending map[string]*TestUpdate
	timer   *time.Timer
	closed  bool
}

// NewIndexWriter creates a new IndexWriter.
func NewIndexWriter(outputDir string, index *Index) *IndexWriter {
	return &IndexWriter{
		path:    filepath.Join(outputDir, IndexFile),
		index:   index,
		pending: make(map[string]*TestUpdate),
	}
}

// Start marks the run as started.
func (w *IndexWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.Status = StatusRunning
	w.index.StartTime = now
	w.flushLocked()
}

// UpdateTest updates a test entry in the index.
// Terminal states flush immediately; progress updates are debounced.
func (w *IndexWriter) UpdateTest(testID string, update *TestUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[testID] = update

	if update.Status.IsTerminal() {
		w.flushLocked()
		return
	}

	if w.timer == nil && !w.closed {
		w.timer = time.AfterFunc(progressDebounce, w.flush)
	}
}

// End marks the run as complete.
func (w *IndexWriter) End() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.EndTime = &now
	w.applyPendingLocked()
	w.index.Status = w.computeRunStatus()
	w.flushLocked()
}

// Close flushes any pending updates and stops the debounce timer.
func (w *IndexWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.flushLocked()
}

// GetIndex returns a copy of the current index.
func (w *IndexWriter) GetIndex() Index {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := *w.index
	idx.Tests = append([]TestEntry(nil), w.index.Tests...)
	return idx
}

func (w *IndexWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.flushLocked()
}

func (w *IndexWriter) applyPendingLocked() {
	for id, update := range w.pending {
		w.applyUpdate(id, update)
	}
	w.pending = make(map[string]*TestUpdate)
}

// flushLocked flushes while holding the lock.
func (w *IndexWriter) flushLocked() {
	w.applyPendingLocked()

	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()
	w.index.Summary = w.computeSummary()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}

	if err := atomicWriteJSON(w.path, w.index); err != nil {
		logger.Warn("report index %s not written: %v", w.path, err)
	}
}

// applyUpdate applies a TestUpdate to the index.
func (w *IndexWriter) applyUpdate(testID string, update *TestUpdate) {
	for i := range w.index.Tests {
		if w.index.Tests[i].ID != testID {
			continue
		}
		t := &w.index.Tests[i]
		t.Status = update.Status
		if update.RunID != "" {
			t.RunID = update.RunID
		}
		if update.ExecutionMethod != "" {
			t.ExecutionMethod = update.ExecutionMethod
		}
		if update.StartTime != nil {
			t.StartTime = update.StartTime
		}
		if update.EndTime != nil {
			t.EndTime = update.EndTime
		}
		if update.Duration != nil {
			t.Duration = update.Duration
		}
		t.Steps = update.Steps
		t.FallbackSteps = update.FallbackSteps
		t.WorkflowUpdated = update.WorkflowUpdated
		if update.Error != nil {
			t.Error = update.Error
		}
		t.UpdateSeq++
		now := time.Now()
		t.LastUpdated = &now
		return
	}
}

// computeSummary calculates the summary from test statuses.
func (w *IndexWriter) computeSummary() Summary {
	var s Summary
	for _, t := range w.index.Tests {
		s.Total++
		switch t.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusRunning:
			s.Running++
		case StatusPending:
			s.Pending++
		}
		if len(t.FallbackSteps) > 0 {
			s.Recovered++
		}
	}
	return s
}

// computeRunStatus determines the overall run status from the tests.
func (w *IndexWriter) computeRunStatus() Status {
	hasFailure := false
	allComplete := true

	for _, t := range w.index.Tests {
		if t.Status == StatusFailed {
			hasFailure = true
		}
		if !t.Status.IsTerminal() {
			allComplete = false
		}
	}

	if !allComplete {
		return StatusRunning
	}
	if hasFailure {
		return StatusFailed
	}
	return StatusPassed
}
