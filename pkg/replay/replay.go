// Package replay executes recorded scripts against a PageDriver without
// any model involvement.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/jsengine"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/resolver"
	"github.com/devicelab-dev/hybrid-runner/pkg/script"
)

// Config configures an Engine.
type Config struct {
	Resolver resolver.Options
	Settle   Settle // Zero value = DefaultSettle()

	// Inputs are run inputs, merged over the script's input_schema defaults.
	Inputs map[string]interface{}

	// Sleep replaces the stability wait, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Engine replays steps one at a time on a single page.
type Engine struct {
	driver core.PageDriver
	cfg    Config
	js     *jsengine.Engine
}

// New creates an engine bound to driver.
func New(driver core.PageDriver, cfg Config) *Engine {
	if cfg.Settle.isZero() {
		cfg.Settle = DefaultSettle()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	e := &Engine{driver: driver, cfg: cfg, js: jsengine.New()}
	e.js.SetVariables(cfg.Inputs)
	return e
}

// Prepare loads the script's input defaults into the expression engine.
// It returns *script.MissingInputsError when required inputs have no value;
// those stay undefined so replay can still proceed.
func (e *Engine) Prepare(s *script.Script) error {
	vars, missing := script.ResolveInputs(s.InputSchema, e.cfg.Inputs)
	e.js.SetVariables(vars)
	for _, f := range s.InputSchema {
		e.js.DefineUndefinedIfMissing(f.Name)
	}
	if len(missing) > 0 {
		return &script.MissingInputsError{Names: missing}
	}
	return nil
}

// ReplayAll replays every step in order and stops at the first failure.
func (e *Engine) ReplayAll(ctx context.Context, s *script.Script) *core.RunResult {
	res := &core.RunResult{OverallSuccess: true}
	if err := e.Prepare(s); err != nil {
		logger.Warn("replay %s: %v", s.Name, err)
	}
	for i := range s.Steps {
		out := e.ReplayStep(ctx, s, i)
		res.StepOutcomes = append(res.StepOutcomes, out)
		if out.Status == core.StatusFailed {
			res.OverallSuccess = false
			res.FailureDetails = fmt.Sprintf("step %d (%s): %s", i+1, out.Description, out.Message)
			break
		}
	}
	return res
}

// ReplayStep executes step idx of s. Failures are reported in the outcome,
// never raised.
func (e *Engine) ReplayStep(ctx context.Context, s *script.Script, idx int) core.StepOutcome {
	out := core.StepOutcome{
		StepIndex:       idx,
		ExecutionMethod: core.MethodReplay,
		Basis:           core.BasisExecution,
	}
	if idx < 0 || idx >= len(s.Steps) {
		out.Status = core.StatusFailed
		out.Message = fmt.Sprintf("step index %d out of range", idx)
		return out
	}

	step := s.Steps[idx]
	out.Description = step.Base().Description
	if out.Description == "" {
		out.Description = step.Describe()
	}

	start := time.Now()
	err := e.execute(ctx, step, &out)
	if err == nil {
		err = e.waitStable(ctx)
	}
	if err == nil {
		wait := e.cfg.Settle.For(step)
		logger.Debug("step %d: settling %s", idx, wait)
		if serr := e.cfg.Sleep(ctx, wait); serr != nil {
			err = core.ErrStepTimeout.WithMessage("stability wait interrupted").WithCause(serr)
		}
	}
	out.Duration = time.Since(start)

	if err != nil {
		out.Status = core.StatusFailed
		out.Message = err.Error()
		out.Err = err
		logger.Info("step %d failed: %v", idx, err)
		return out
	}
	out.Status = core.StatusPassed
	return out
}

func (e *Engine) execute(ctx context.Context, step script.Step, out *core.StepOutcome) error {
	switch st := step.(type) {
	case *script.NavigationStep:
		url := e.expand(st.URL)
		if err := e.driver.Navigate(ctx, url); err != nil {
			return core.ErrDriver.WithMessage("navigation failed").WithCause(err).WithDetails(map[string]interface{}{"url": url})
		}
		return nil

	case *script.ClickStep:
		h, sel, err := e.resolve(ctx, &st.Locators)
		if err != nil {
			return err
		}
		out.Locator = sel
		if err := e.driver.Click(ctx, h, core.ClickOptions{}); err != nil {
			return driverError("click failed", sel, err)
		}
		return nil

	case *script.InputStep:
		h, sel, err := e.resolve(ctx, &st.Locators)
		if err != nil {
			return err
		}
		out.Locator = sel
		tag, err := e.driver.TagName(ctx, h)
		if err != nil {
			return driverError("tag lookup failed", sel, err)
		}
		if tag == "select" {
			out.NoOp = true
			out.Message = "Ignored input into select element"
			return nil
		}
		value := e.expand(st.Value)
		if err := e.driver.Clear(ctx, h); err != nil {
			return driverError("clear failed", sel, err)
		}
		if err := e.driver.Fill(ctx, h, value); err != nil {
			return driverError("fill failed", sel, err)
		}
		if got, ok, err := e.driver.ReadValue(ctx, h); err == nil && ok && got != value {
			logger.Warn("input verify: %s holds %q, expected %q", core.TruncateSelector(sel), got, value)
			out.Message = "value readback mismatch"
		}
		return nil

	case *script.KeyPressStep:
		var h core.ElementHandle
		if st.Locators != nil {
			var err error
			var sel string
			if h, sel, err = e.resolve(ctx, st.Locators); err != nil {
				return err
			}
			out.Locator = sel
		}
		if err := e.driver.Press(ctx, h, st.Key); err != nil {
			return driverError("key press failed", out.Locator, err)
		}
		return nil

	case *script.ScrollStep:
		if err := e.driver.ScrollBy(ctx, st.DeltaX, st.DeltaY); err != nil {
			return core.ErrDriver.WithMessage("scroll failed").WithCause(err)
		}
		return nil

	case *script.SelectOptionStep:
		h, sel, err := e.resolve(ctx, &st.Locators)
		if err != nil {
			return err
		}
		out.Locator = sel
		label := e.expand(st.SelectedText)
		if err := e.driver.SelectByLabel(ctx, h, label); err != nil {
			if errors.Is(err, core.ErrOptionNotFound) {
				return core.ErrOptionNotFound.
					WithMessage(fmt.Sprintf("no option labelled %q", label)).
					WithSelector(sel).WithCause(err)
			}
			return driverError("select failed", sel, err)
		}
		return nil
	}
	return core.ErrInvalidStepDescriptor.WithMessage(fmt.Sprintf("unsupported step %T", step))
}

// waitStable lets drivers that can observe the page wait for it to go
// quiet before the fixed settle window.
func (e *Engine) waitStable(ctx context.Context) error {
	st, ok := e.driver.(core.Stabilizer)
	if !ok || e.cfg.Settle.Network <= 0 {
		return nil
	}
	if err := st.WaitStable(ctx, e.cfg.Settle.Network); err != nil {
		if ctx.Err() != nil {
			return core.ErrStepTimeout.WithMessage("stability wait interrupted").WithCause(err)
		}
		logger.Debug("page did not go quiet: %v", err)
	}
	return nil
}

func (e *Engine) resolve(ctx context.Context, b *script.LocatorBundle) (core.ElementHandle, string, error) {
	res, err := resolver.Resolve(ctx, e.driver, b.Candidates(), b.Original, e.cfg.Resolver)
	if err != nil {
		return nil, "", err
	}
	return res.Handle, res.Candidate.Selector, nil
}

func (e *Engine) expand(text string) string {
	out, unresolved := e.js.ExpandVariables(text)
	if len(unresolved) > 0 {
		logger.Warn("unresolved expressions %v left as written", unresolved)
	}
	return out
}

func driverError(msg, selector string, cause error) error {
	return core.ErrDriver.WithMessage(msg).WithSelector(selector).WithCause(cause)
}
