// Package agent is an LLM-driven browser agent. Each step it lists the
// page's interactive elements, asks the model for one action and performs
// it through the PageDriver, recording an ActionTrace the capture pipeline
// can turn into a replayable script.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/gherkin"
	"github.com/devicelab-dev/hybrid-runner/pkg/locator"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/resolver"
	"github.com/devicelab-dev/hybrid-runner/pkg/script"
)

// DefaultMaxElements bounds the element listing sent to the model.
const DefaultMaxElements = 80

// historyLimit is how many past step lines are replayed into the prompt.
const historyLimit = 20

// Agent implements core.AutonomousAgent.
type Agent struct {
	Driver      core.PageDriver
	Model       core.LanguageModel
	Resolver    resolver.Options
	MaxElements int

	// Sleep replaces waiting for the wait action, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates an agent over driver and model.
func New(driver core.PageDriver, model core.LanguageModel) *Agent {
	return &Agent{Driver: driver, Model: model}
}

func (a *Agent) maxElements() int {
	if a.MaxElements <= 0 {
		return DefaultMaxElements
	}
	return a.MaxElements
}

// Decision is the model's answer for one step.
type Decision struct {
	Thinking  string                 `json:"thinking"`
	Narration []string               `json:"narration"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params"`
}

// ParseDecision extracts the JSON decision from a model reply, tolerating
// code fences and prose around the object.
func ParseDecision(reply string) (*Decision, error) {
	text := strings.TrimSpace(gherkin.StripCodeFence(reply))
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}
	var d Decision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil, fmt.Errorf("agent reply is not a JSON decision: %w", err)
	}
	if d.Action == "" {
		return nil, fmt.Errorf("agent reply names no action")
	}
	if d.Params == nil {
		d.Params = map[string]interface{}{}
	}
	return &d, nil
}

// Run performs task in at most maxSteps model decisions. Running out of
// steps is not an error; the trace ends with a line the classifier reads
// as a failure. A model error ends the run with ErrAgentInvocation and the
// trace so far.
func (a *Agent) Run(ctx context.Context, task string, maxSteps int) (*core.ActionTrace, error) {
	if a.Model == nil {
		return nil, core.ErrAgentInvocation.WithMessage("agent has no language model")
	}
	if maxSteps <= 0 {
		return nil, core.ErrAgentInvocation.WithMessage(fmt.Sprintf("invalid step budget %d", maxSteps))
	}

	trace := &core.ActionTrace{}
	var history []string
	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return trace, core.ErrAgentInvocation.WithMessage("agent cancelled").WithCause(err)
		}
		page, err := a.observe(ctx)
		if err != nil {
			return trace, err
		}

		reply, err := a.Model.Complete(ctx, buildPrompt(task, page, history, step, maxSteps))
		if err != nil {
			return trace, core.ErrAgentInvocation.WithMessage(fmt.Sprintf("model call failed at step %d", step)).WithCause(err)
		}
		dec, err := ParseDecision(reply)
		if err != nil {
			logger.Warn("agent step %d: %v", step, err)
			history = append(history, fmt.Sprintf("Step %d: invalid reply, answer with one JSON object", step))
			continue
		}
		trace.Narration = append(trace.Narration, dec.Narration...)
		logger.Debug("agent step %d: %s %v", step, dec.Action, dec.Params)

		if script.NormalizeAction(dec.Action) == script.ActionDone {
			trace.Actions = append(trace.Actions, core.Action{Name: script.ActionDone, Params: dec.Params})
			if text := paramText(dec.Params, "text"); text != "" {
				trace.Narration = append(trace.Narration, text)
			}
			return trace, nil
		}

		action, line, err := a.act(ctx, page, dec)
		if err != nil {
			line = fmt.Sprintf("Action %s failed: %v", dec.Action, err)
			logger.Warn("agent step %d: %s", step, line)
			trace.Narration = append(trace.Narration, line)
			history = append(history, fmt.Sprintf("Step %d: %s", step, line))
			continue
		}
		trace.Actions = append(trace.Actions, *action)
		trace.Narration = append(trace.Narration, line)
		history = append(history, fmt.Sprintf("Step %d: %s", step, line))
	}

	trace.Narration = append(trace.Narration, fmt.Sprintf("Unable to proceed: step budget of %d exhausted before the task was done", maxSteps))
	return trace, nil
}

// actionCandidates targets the observed element itself: its snapshot
// xpath first, then the synthesized candidates, which may match siblings.
func actionCandidates(desc *core.ElementDescriptor) []locator.Candidate {
	cands := locator.Synthesize(desc)
	if desc == nil || desc.XPath == "" {
		return cands
	}
	return append([]locator.Candidate{locator.Classify(desc.XPath)}, cands...)
}

// act performs one decision. The returned line uses the phrasing the
// narration capture understands.
func (a *Agent) act(ctx context.Context, page *Page, dec *Decision) (*core.Action, string, error) {
	name := script.NormalizeAction(dec.Action)
	action := &core.Action{Name: dec.Action, Params: dec.Params}

	switch name {
	case script.ActionNavigate:
		url := paramText(dec.Params, "url")
		if url == "" {
			return nil, "", fmt.Errorf("navigate needs a url")
		}
		if err := a.Driver.Navigate(ctx, url); err != nil {
			return nil, "", err
		}
		return action, "Navigated to URL: " + url, nil

	case script.ActionClickByIndex, script.ActionInputText, script.ActionSelectOption:
		idx, err := paramIndex(dec.Params)
		if err != nil {
			return nil, "", err
		}
		el, err := page.element(idx)
		if err != nil {
			return nil, "", err
		}
		res, err := resolver.Resolve(ctx, a.Driver, actionCandidates(el.Descriptor), el.Descriptor, a.Resolver)
		if err != nil {
			return nil, "", err
		}
		action.Element = el.Descriptor

		switch name {
		case script.ActionClickByIndex:
			if err := a.Driver.Click(ctx, res.Handle, core.ClickOptions{}); err != nil {
				return nil, "", err
			}
			return action, fmt.Sprintf("Clicked element with index %d", idx), nil
		case script.ActionInputText:
			text := paramText(dec.Params, "text", "value")
			if err := a.Driver.Clear(ctx, res.Handle); err != nil {
				return nil, "", err
			}
			if err := a.Driver.Fill(ctx, res.Handle, text); err != nil {
				return nil, "", err
			}
			return action, fmt.Sprintf("Input %q into index %d", text, idx), nil
		default:
			text := paramText(dec.Params, "text", "value", "option")
			if err := a.Driver.SelectByLabel(ctx, res.Handle, text); err != nil {
				return nil, "", err
			}
			return action, fmt.Sprintf("Selected option %q in index %d", text, idx), nil
		}

	case script.ActionKeyPress:
		key := paramText(dec.Params, "key", "keys")
		if key == "" {
			return nil, "", fmt.Errorf("key press needs a key")
		}
		if err := a.Driver.Press(ctx, nil, key); err != nil {
			return nil, "", err
		}
		return action, "Pressed key " + key, nil

	case script.ActionScroll:
		amount := script.DefaultScrollAmount
		if v := paramText(dec.Params, "amount"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				amount = n
			}
		}
		dir := "down"
		if strings.EqualFold(dec.Action, "scroll_up") {
			dir, amount = "up", -amount
		}
		if err := a.Driver.ScrollBy(ctx, 0, amount); err != nil {
			return nil, "", err
		}
		return action, fmt.Sprintf("Scrolled %s by %d", dir, abs(amount)), nil

	case script.ActionWait:
		secs := 1
		if v := paramText(dec.Params, "seconds"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 10 {
				secs = n
			}
		}
		if err := a.sleep(ctx, time.Duration(secs)*time.Second); err != nil {
			return nil, "", err
		}
		return action, fmt.Sprintf("Waited %d seconds", secs), nil

	case script.ActionExtractContent:
		html, err := a.Driver.Content(ctx)
		if err != nil {
			return nil, "", err
		}
		return action, fmt.Sprintf("Extracted page content (%d bytes)", len(html)), nil
	}
	return nil, "", fmt.Errorf("unknown action %q", dec.Action)
}

func (a *Agent) sleep(ctx context.Context, d time.Duration) error {
	if a.Sleep != nil {
		return a.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func buildPrompt(task string, page *Page, history []string, step, maxSteps int) string {
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	var b strings.Builder
	b.WriteString(`You control a web browser to complete a task. Answer with exactly one JSON object:
{"thinking": "...", "narration": ["result lines to report"], "action": "<name>", "params": {...}}

Actions:
  go_to_url {"url"}
  click_element_by_index {"index"}
  input_text {"index", "text"}
  select_dropdown_option {"index", "text"}
  send_keys {"keys"}
  scroll_down {"amount"} / scroll_up {"amount"}
  wait {"seconds"}
  extract_content {}
  done {"success": true|false, "text": "final summary"}

Put every STEP_RESULT / ASSERTION line the task asks for into "narration" as soon as you know it.

Task:
`)
	b.WriteString(task)
	b.WriteString("\n\n")
	if len(history) > 0 {
		b.WriteString("History:\n")
		for _, h := range history {
			b.WriteString(h)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Step %d of %d.\n", step, maxSteps)
	b.WriteString(page.Render())
	return b.String()
}

func paramText(params map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := params[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func paramIndex(params map[string]interface{}) (int, error) {
	v := paramText(params, "index")
	if v == "" {
		return 0, fmt.Errorf("action needs an element index")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid element index %q", v)
	}
	return n, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
