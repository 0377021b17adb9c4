// Package orchestrator runs a test either as a full agent run that
// records a script, or as a script replay that escalates single failed
// steps to the agent and writes the recovered step back.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/hybrid-runner/pkg/classify"
	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/events"
	"github.com/devicelab-dev/hybrid-runner/pkg/gherkin"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/replay"
	"github.com/devicelab-dev/hybrid-runner/pkg/script"
)

// Step budgets for the two kinds of agent invocation.
const (
	DefaultFullRunMaxSteps = 50
	DefaultStepMaxSteps    = 5
)

// Store persists scripts. *script.FileStore implements it.
type Store interface {
	Load(path string) (*script.Script, error)
	Create(path string, s *script.Script) error
	UpdateStep(path string, idx int, step script.Step) (*script.Script, error)
}

// Config tunes an Orchestrator.
type Config struct {
	FullRunMaxSteps int
	StepMaxSteps    int
	// FailureBehavior applies to full runs; single-step fallbacks always
	// stop on the first failed assertion.
	FailureBehavior gherkin.FailureBehavior
	Replay          replay.Config
}

// Orchestrator runs tests on one browser session.
type Orchestrator struct {
	Driver     core.PageDriver
	Agent      core.AutonomousAgent
	Translator *gherkin.Translator
	Store      Store
	Events     events.Publisher
	Classifier *classify.Classifier
	Config     Config
}

// New creates an orchestrator with a file store and no event publisher.
func New(driver core.PageDriver, agent core.AutonomousAgent, cfg Config) *Orchestrator {
	return &Orchestrator{
		Driver: driver,
		Agent:  agent,
		Store:  &script.FileStore{},
		Config: cfg,
	}
}

func (o *Orchestrator) fullRunMaxSteps() int {
	if o.Config.FullRunMaxSteps <= 0 {
		return DefaultFullRunMaxSteps
	}
	return o.Config.FullRunMaxSteps
}

func (o *Orchestrator) stepMaxSteps() int {
	if o.Config.StepMaxSteps <= 0 {
		return DefaultStepMaxSteps
	}
	return o.Config.StepMaxSteps
}

func (o *Orchestrator) classifier() *classify.Classifier {
	if o.Classifier == nil {
		return &classify.Classifier{Table: classify.DefaultTable()}
	}
	return o.Classifier
}

func (o *Orchestrator) publish(ctx context.Context, e events.Event) {
	if o.Events == nil {
		return
	}
	if err := o.Events.Publish(ctx, e); err != nil {
		logger.Warn("event %s for run %s not published: %v", e.Type, e.RunID, err)
	}
}

// RunTest runs the test at req.TestPath. The returned error is set only
// when the run could not start (unreadable test, invalid scenario, script
// in use); failures during the run are reported in the result.
func (o *Orchestrator) RunTest(ctx context.Context, req Request) (*TestResult, error) {
	res := &TestResult{
		RunID:      req.RunID,
		TestPath:   req.TestPath,
		ScriptPath: script.PathFor(req.TestPath),
		StartedAt:  time.Now(),
	}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	defer func() { res.Duration = time.Since(res.StartedAt) }()

	log := logger.With("run_id", res.RunID)
	o.publish(ctx, events.New(res.RunID, events.RunStarted))

	scenario, err := o.loadScenario(ctx, req.TestPath)
	if err != nil {
		res.fail(err)
		o.finish(ctx, res)
		return res, err
	}

	unlock, ok := scriptLocks.tryLock(res.ScriptPath)
	if !ok {
		err := core.ErrScriptInUse.WithDetails(map[string]interface{}{"path": res.ScriptPath})
		res.fail(err)
		o.finish(ctx, res)
		return res, err
	}
	defer unlock()

	if !req.ForceAgent {
		s, err := o.Store.Load(res.ScriptPath)
		switch {
		case err == nil && len(s.Steps) > 0:
			log.Infof("replaying %s (version %s, %d steps)", res.ScriptPath, s.Version, len(s.Steps))
			o.runReplay(ctx, res, req, s, scenario)
			o.finish(ctx, res)
			return res, nil
		case err == nil:
			log.Infof("script %s has no steps, running agent", res.ScriptPath)
		case script.IsNotExist(err):
			log.Infof("no script at %s, running agent", res.ScriptPath)
		default:
			log.Warnf("script %s unreadable, running agent and rewriting it: %v", res.ScriptPath, err)
		}
	}

	o.runFull(ctx, res, req, scenario)
	o.finish(ctx, res)
	return res, nil
}

func (o *Orchestrator) loadScenario(ctx context.Context, path string) (string, error) {
	text, err := gherkin.ReadTestFile(path)
	if err != nil {
		return "", err
	}
	return o.Translator.ToScenario(ctx, text)
}

func (o *Orchestrator) finish(ctx context.Context, res *TestResult) {
	if !res.Success && res.FailureCategory == "" && res.FailureDetails != "" {
		res.FailureCategory = string(classify.CategorizeError(res.FailureDetails))
	}
	e := events.New(res.RunID, events.RunFinished)
	e.Status = core.StatusPassed.String()
	if !res.Success {
		e.Status = core.StatusFailed.String()
	}
	e.Method = res.ExecutionMethod
	e.Message = res.FailureDetails
	o.publish(ctx, e)
}

// runFull drives the agent through the whole scenario and, when the
// transcript classifies as a success, records its trace as the script.
func (o *Orchestrator) runFull(ctx context.Context, res *TestResult, req Request, scenario string) {
	res.ExecutionMethod = MethodAgentFull
	stepTexts := gherkin.StepLines(scenario)

	behavior := o.Config.FailureBehavior
	if !behavior.Valid() {
		behavior = gherkin.StopOnFirst
	}
	trace, err := o.Agent.Run(ctx, gherkin.BrowserTask(scenario, behavior), o.fullRunMaxSteps())
	if err == nil && trace.IsEmpty() {
		err = core.ErrAgentInvocation.WithMessage("agent returned an empty trace")
	}
	if err != nil {
		res.fail(err)
		return
	}

	v := o.classifier().Classify(trace.Narration, stepTexts)
	for _, s := range v.Steps {
		s.ExecutionMethod = core.MethodAgent
		res.StepResults = append(res.StepResults, s)
		o.publishStep(ctx, res.RunID, s)
	}
	res.Success = v.OverallSuccess
	res.FailureDetails = v.FailureDetails
	if v.FailureCategory != "" {
		res.FailureCategory = string(v.FailureCategory)
	}
	if !res.Success {
		logger.Info("agent run of %s failed: %s", req.TestPath, v.FailureDetails)
		return
	}

	captured := script.CaptureTrace(trace)
	res.CaptureMethod = captured.Method
	if len(captured.Steps) == 0 {
		logger.Warn("agent run of %s passed but produced no replayable steps; no script written", req.TestPath)
		return
	}
	if captured.Method == script.CaptureFreeText {
		logger.Warn("script for %s captured from narration; index-based locators are provisional", req.TestPath)
	}

	s := &script.Script{
		Name:        strings.TrimSuffix(filepath.Base(req.TestPath), filepath.Ext(req.TestPath)),
		Description: featureTitle(scenario),
		Version:     script.InitialVersion,
		Steps:       captured.Steps,
		Metadata: script.Metadata{
			Source:        req.TestPath,
			CaptureMethod: captured.Method,
		},
	}
	if err := o.Store.Create(res.ScriptPath, s); err != nil {
		logger.Error("failed to save script %s: %v", res.ScriptPath, err)
		return
	}
	res.WorkflowUpdated = true
	res.ScriptVersion = s.Version
	e := events.New(res.RunID, events.ScriptUpdated)
	e.Message = fmt.Sprintf("created %s with %d steps", res.ScriptPath, len(s.Steps))
	o.publish(ctx, e)
}

// runReplay replays s step by step. A failed step goes to the agent; a
// recovered step is written back before the next step runs.
func (o *Orchestrator) runReplay(ctx context.Context, res *TestResult, req Request, s *script.Script, scenario string) {
	res.ExecutionMethod = MethodReplay
	res.ScriptVersion = s.Version
	res.Success = true

	cfg := o.Config.Replay
	cfg.Inputs = req.Inputs
	eng := replay.New(o.Driver, cfg)
	var missing *script.MissingInputsError
	if err := eng.Prepare(s); errors.As(err, &missing) {
		logger.Warn("run %s: %v", res.RunID, err)
	}

	for i := range s.Steps {
		out := eng.ReplayStep(ctx, s, i)
		if out.Status != core.StatusFailed {
			res.StepResults = append(res.StepResults, out)
			o.publishStep(ctx, res.RunID, out)
			continue
		}

		logger.Info("step %d (%s) failed on replay: %s", i+1, out.Description, out.Message)
		res.ExecutionMethod = MethodReplayWithFallback
		res.addFallback(i)
		fe := events.New(res.RunID, events.StepFallback).ForStep(i)
		fe.Message = out.Message
		o.publish(ctx, fe)

		fout, recovered := o.fallback(ctx, scenario, s, i, out)
		res.StepResults = append(res.StepResults, fout)
		o.publishStep(ctx, res.RunID, fout)
		if fout.Status == core.StatusFailed {
			res.Success = false
			res.FailureDetails = fmt.Sprintf("step %d (%s): %s", i+1, fout.Description, fout.Message)
			return
		}
		if recovered == nil {
			continue
		}

		updated, err := o.Store.UpdateStep(res.ScriptPath, i, recovered)
		if err != nil {
			logger.Error("step %d recovered but script not updated: %v", i+1, err)
			continue
		}
		res.WorkflowUpdated = true
		res.ScriptVersion = updated.Version
		s.Steps[i] = recovered
		ue := events.New(res.RunID, events.ScriptUpdated).ForStep(i)
		ue.Message = "version " + updated.Version
		o.publish(ctx, ue)
	}
}

// fallback runs the agent on the sub-scenario of step idx and returns the
// outcome plus the captured replacement step, if any.
func (o *Orchestrator) fallback(ctx context.Context, scenario string, s *script.Script, idx int, failed core.StepOutcome) (core.StepOutcome, script.Step) {
	out := core.StepOutcome{
		StepIndex:       idx,
		Description:     failed.Description,
		ExecutionMethod: core.MethodAgentFallback,
		Basis:           core.BasisExecution,
	}
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	sub, err := gherkin.ExtractStep(scenario, idx)
	if err != nil {
		logger.Debug("step %d has no matching scenario line, using its description", idx+1)
		sub = gherkin.Wrap(gherkin.DefaultFeature, gherkin.DefaultScenario, []string{"When I " + failed.Description})
	}

	trace, err := o.Agent.Run(ctx, gherkin.BrowserTask(sub, gherkin.StopOnAssertion), o.stepMaxSteps())
	if err == nil && trace.IsEmpty() {
		err = core.ErrAgentInvocation.WithMessage("agent returned an empty trace")
	}
	if err != nil {
		out.Status = core.StatusFailed
		out.Message = "agent fallback failed: " + err.Error()
		out.Err = err
		return out, nil
	}

	v := o.classifier().Classify(trace.Narration, gherkin.StepLines(sub))
	captured := script.CaptureTrace(trace)
	if !v.OverallSuccess && (v.Signal || len(captured.Steps) == 0) {
		out.Status = core.StatusFailed
		out.Message = "agent fallback failed: " + v.FailureDetails
		if v.Signal {
			out.Basis = v.OverallBasis
		}
		return out, nil
	}

	out.Status = core.StatusPassed
	out.Message = "recovered by agent"
	if v.Signal {
		out.Basis = v.OverallBasis
	}

	step := pickStep(captured.Steps, s.Steps[idx].Type())
	if step == nil {
		logger.Warn("step %d recovered but the agent trace held no replayable action", idx+1)
		out.Message = "recovered by agent; no replayable action captured"
	}
	return out, step
}

// pickStep prefers the first captured step of the failed step's variant.
func pickStep(steps []script.Step, want script.StepType) script.Step {
	for _, st := range steps {
		if st.Type() == want {
			return st
		}
	}
	if len(steps) > 0 {
		return steps[0]
	}
	return nil
}

func (o *Orchestrator) publishStep(ctx context.Context, runID string, out core.StepOutcome) {
	e := events.New(runID, events.StepCompleted).ForStep(out.StepIndex)
	e.Status = out.Status.String()
	e.Method = string(out.ExecutionMethod)
	e.Message = out.Message
	o.publish(ctx, e)
}

func featureTitle(scenario string) string {
	for _, line := range strings.Split(scenario, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Feature:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Feature:"))
		}
	}
	return ""
}
