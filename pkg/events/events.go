// Package events publishes run and step lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event types.
const (
	RunStarted    = "run.started"
	StepCompleted = "step.completed"
	StepFallback  = "step.fallback"
	ScriptUpdated = "script.updated"
	RunFinished   = "run.finished"
)

// Event is one lifecycle notification.
type Event struct {
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	StepIndex *int      `json:"step_index,omitempty"`
	Status    string    `json:"status,omitempty"`
	Method    string    `json:"method,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event stamped now.
func New(runID, typ string) Event {
	return Event{RunID: runID, Type: typ, Timestamp: time.Now().UTC()}
}

// ForStep sets the step index.
func (e Event) ForStep(idx int) Event {
	e.StepIndex = &idx
	return e
}

// Encode returns the wire form.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events. Publish must not block the run for long.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps events in memory, grouped by run.
type Recorder struct {
	mu     sync.Mutex
	events map[string][]Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{events: make(map[string][]Event)}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.RunID] = append(r.events[e.RunID], e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the events recorded for runID.
func (r *Recorder) Events(runID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[runID]...)
}

// Types returns the event types recorded for runID, in order.
func (r *Recorder) Types(runID string) []string {
	var out []string
	for _, e := range r.Events(runID) {
		out = append(out, e.Type)
	}
	return out
}

// Multi fans out to several publishers and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
