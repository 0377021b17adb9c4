// Package server exposes test runs over HTTP: submit a run, poll it, and
// read token usage.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/devicelab-dev/hybrid-runner/pkg/accounting"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/orchestrator"
)

// Run states.
const (
	StateQueued  = "queued"
	StateRunning = "running"
	StatePassed  = "passed"
	StateFailed  = "failed"
	StateError   = "error"
)

// RunFunc executes one test to completion.
type RunFunc func(ctx context.Context, req orchestrator.Request) (*orchestrator.TestResult, error)

// Config configures a Server.
type Config struct {
	// TestRoot resolves relative test paths. Empty = working directory.
	TestRoot string
	// MaxConcurrent bounds runs in flight; the rest wait queued. 0 = 1.
	MaxConcurrent int
}

// Run is the server's record of one submitted test run.
type Run struct {
	ID          string                   `json:"run_id"`
	TestPath    string                   `json:"test_path"`
	ForceAgent  bool                     `json:"force_agent"`
	Status      string                   `json:"status"`
	SubmittedAt time.Time                `json:"submitted_at"`
	FinishedAt  *time.Time               `json:"finished_at,omitempty"`
	Result      *orchestrator.TestResult `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// RunRequest is the body of POST /runs.
type RunRequest struct {
	TestPath   string                 `json:"test_path"`
	ForceAgent bool                   `json:"force_agent"`
	Inputs     map[string]interface{} `json:"inputs,omitempty"`
}

// Server tracks runs in memory. Runs survive until the process exits.
type Server struct {
	cfg   Config
	run   RunFunc
	usage accounting.Sink
	sem   chan struct{}

	mu   sync.RWMutex
	runs map[string]*Run

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Server. usage may be nil.
func New(run RunFunc, usage accounting.Sink, cfg Config) *Server {
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		run:    run,
		usage:  usage,
		sem:    make(chan struct{}, n),
		runs:   make(map[string]*Run),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/runs", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/runs", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/usage", s.handleUsage).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves until ctx is done, then shuts down and cancels
// runs in flight.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("server listening on %s", addr)

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close cancels runs in flight and waits for them to finish.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every submitted run has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.TestPath == "" {
		writeError(w, http.StatusBadRequest, "test_path is required")
		return
	}
	path := req.TestPath
	if !filepath.IsAbs(path) && s.cfg.TestRoot != "" {
		path = filepath.Join(s.cfg.TestRoot, path)
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "test not found: "+req.TestPath)
		return
	}

	run := &Run{
		ID:          uuid.NewString(),
		TestPath:    path,
		ForceAgent:  req.ForceAgent,
		Status:      StateQueued,
		SubmittedAt: time.Now(),
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(run, req.Inputs)

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": StateQueued})
}

func (s *Server) execute(run *Run, inputs map[string]interface{}) {
	defer s.wg.Done()
	log := logger.With("run_id", run.ID)

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-s.ctx.Done():
		s.finish(run, nil, s.ctx.Err())
		return
	}
	if err := s.ctx.Err(); err != nil {
		s.finish(run, nil, err)
		return
	}
	s.setStatus(run, StateRunning)
	log.Infof("running %s", run.TestPath)

	res, err := s.run(s.ctx, orchestrator.Request{
		TestPath:   run.TestPath,
		ForceAgent: run.ForceAgent,
		Inputs:     inputs,
		RunID:      run.ID,
	})
	s.finish(run, res, err)
}

func (s *Server) setStatus(run *Run, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.Status = status
}

func (s *Server) finish(run *Run, res *orchestrator.TestResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	run.FinishedAt = &now
	run.Result = res
	switch {
	case err != nil:
		run.Status = StateError
		run.Error = err.Error()
	case res != nil && res.Success:
		run.Status = StatePassed
	default:
		run.Status = StateFailed
	}
}

// snapshot copies a run under the read lock.
func (s *Server) snapshot(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, ok := s.snapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	runs := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		c := *run
		c.Result = nil
		runs = append(runs, c)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].SubmittedAt.Before(runs[j].SubmittedAt) })
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeJSON(w, http.StatusOK, &accounting.Summary{Models: map[string]accounting.ModelUsage{}})
		return
	}
	summary, err := s.usage.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
