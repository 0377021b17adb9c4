package script

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/locator"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
)

// Canonical agent action names.
const (
	ActionNavigate       = "navigate"
	ActionInputText      = "inputText"
	ActionClickByIndex   = "clickByIndex"
	ActionKeyPress       = "keyPress"
	ActionScroll         = "scroll"
	ActionSelectOption   = "selectOption"
	ActionDone           = "done"
	ActionWait           = "wait"
	ActionExtractContent = "extractContent"
)

// Capture methods recorded in script metadata.
const (
	CaptureStructured = "structured"
	CaptureFreeText   = "free_text"
)

// DefaultScrollAmount is used when a scroll action carries no amount.
const DefaultScrollAmount = 500

// actionAliases maps the names agents emit to canonical names.
var actionAliases = map[string]string{
	"navigate":               ActionNavigate,
	"go_to_url":              ActionNavigate,
	"open_tab":               ActionNavigate,
	"inputtext":              ActionInputText,
	"input_text":             ActionInputText,
	"type":                   ActionInputText,
	"clickbyindex":           ActionClickByIndex,
	"click_element_by_index": ActionClickByIndex,
	"click_element":          ActionClickByIndex,
	"click":                  ActionClickByIndex,
	"keypress":               ActionKeyPress,
	"key_press":              ActionKeyPress,
	"send_keys":              ActionKeyPress,
	"press":                  ActionKeyPress,
	"scroll":                 ActionScroll,
	"scroll_down":            ActionScroll,
	"scroll_up":              ActionScroll,
	"selectoption":           ActionSelectOption,
	"select_option":          ActionSelectOption,
	"select_dropdown_option": ActionSelectOption,
	"done":                   ActionDone,
	"wait":                   ActionWait,
	"extractcontent":         ActionExtractContent,
	"extract_content":        ActionExtractContent,
}

// NormalizeAction returns the canonical action name, or "" if unknown.
func NormalizeAction(name string) string {
	return actionAliases[strings.ToLower(strings.TrimSpace(name))]
}

// DeriveBundle builds the locator bundle for a captured element.
func DeriveBundle(desc *core.ElementDescriptor) LocatorBundle {
	if desc == nil {
		return LocatorBundle{}
	}
	cands := locator.Synthesize(desc)
	b := LocatorBundle{Original: desc.Clone()}

	rest := cands
	if len(cands) > 0 && cands[0].IsPrimaryKind() {
		p := cands[0]
		b.Primary = &p
		rest = cands[1:]
	}
	semanticAt := -1
	for i, c := range rest {
		if c.IsSemanticKind() {
			semanticAt = i
			break
		}
	}
	for i, c := range rest {
		if i == semanticAt {
			s := c
			b.Semantic = &s
			continue
		}
		b.Fallbacks = append(b.Fallbacks, c)
	}
	return b
}

// ExtractLabel returns the human label for an element: aria-label, value,
// title, then visible text.
func ExtractLabel(desc *core.ElementDescriptor) string {
	if desc == nil {
		return ""
	}
	for _, name := range []string{"aria-label", "value", "title"} {
		if v := strings.TrimSpace(desc.Attr(name)); v != "" {
			return v
		}
	}
	return strings.Join(strings.Fields(desc.VisibleText), " ")
}

// CaptureStep converts one agent action into a step. It returns (nil, nil)
// for bookkeeping actions that have no replayable effect, and
// ErrInvalidStepDescriptor when a step would carry no usable locator.
func CaptureStep(action string, params map[string]interface{}, desc *core.ElementDescriptor) (Step, error) {
	raw := strings.ToLower(strings.TrimSpace(action))
	var st Step
	switch NormalizeAction(action) {
	case ActionNavigate:
		url := paramString(params, "url")
		if url == "" {
			return nil, core.ErrInvalidStepDescriptor.WithMessage("navigation without url")
		}
		st = &NavigationStep{BaseStep: BaseStep{StepType: StepNavigation}, URL: url}
	case ActionInputText:
		st = &InputStep{
			BaseStep:   BaseStep{StepType: StepInput},
			Locators:   DeriveBundle(desc),
			Value:      paramString(params, "text", "value"),
			ElementTag: desc.TagName(),
		}
	case ActionClickByIndex:
		st = &ClickStep{
			BaseStep:    BaseStep{StepType: StepClick},
			Locators:    DeriveBundle(desc),
			ElementTag:  desc.TagName(),
			ElementText: ExtractLabel(desc),
		}
	case ActionKeyPress:
		key := paramString(params, "key", "keys")
		if key == "" {
			return nil, core.ErrInvalidStepDescriptor.WithMessage("key press without key")
		}
		kp := &KeyPressStep{BaseStep: BaseStep{StepType: StepKeyPress}, Key: key}
		if desc != nil {
			b := DeriveBundle(desc)
			kp.Locators = &b
		}
		st = kp
	case ActionScroll:
		dx, _ := paramInt(params, "dx", "scrollX", "delta_x")
		dy, ok := paramInt(params, "dy", "scrollY", "delta_y")
		if !ok {
			amount, has := paramInt(params, "amount", "pixels")
			if !has {
				amount = DefaultScrollAmount
			}
			dy = amount
			if raw == "scroll_up" {
				dy = -amount
			}
		}
		st = &ScrollStep{BaseStep: BaseStep{StepType: StepScroll}, DeltaX: dx, DeltaY: dy}
	case ActionSelectOption:
		st = &SelectOptionStep{
			BaseStep:     BaseStep{StepType: StepSelectOption},
			Locators:     DeriveBundle(desc),
			SelectedText: paramString(params, "text", "value", "option"),
			ElementTag:   desc.TagName(),
		}
	case ActionDone, ActionWait, ActionExtractContent:
		return nil, nil
	default:
		logger.Debug("capture: ignoring unknown action %q", action)
		return nil, nil
	}

	if err := CheckLocators(st); err != nil {
		return nil, err
	}
	st.Base().Description = st.Describe()
	return st, nil
}

// CaptureResult holds the steps recovered from an agent trace.
type CaptureResult struct {
	Steps   []Step
	Method  string
	Dropped []error // Steps rejected as InvalidStepDescriptor
}

// CaptureTrace converts a whole trace, preferring structured actions and
// falling back to narration when they yield nothing. An empty result is
// not an error; the caller decides.
func CaptureTrace(trace *core.ActionTrace) CaptureResult {
	res := CaptureResult{Method: CaptureStructured}
	if trace == nil {
		return res
	}
	for i, a := range trace.Actions {
		st, err := CaptureStep(a.Name, a.Params, a.Element)
		if err != nil {
			logger.Warn("capture: dropping action %d (%s): %v", i, a.Name, err)
			res.Dropped = append(res.Dropped, fmt.Errorf("action %d (%s): %w", i, a.Name, err))
			continue
		}
		if st != nil {
			res.Steps = append(res.Steps, st)
		}
	}
	if len(res.Steps) > 0 {
		return res
	}

	if steps := CaptureNarration(trace.Narration); len(steps) > 0 {
		res.Steps = steps
		res.Method = CaptureFreeText
	}
	return res
}

var (
	navigatedRe = regexp.MustCompile(`(?i)navigated to\s+(?:url:?\s*)?['"]?(https?://[^\s'"]+)`)
	inputRe     = regexp.MustCompile(`(?i)input\s+(.+?)\s+into\s+index\s+(\d+)`)
	clickedRe   = regexp.MustCompile(`(?i)clicked\b.*?\bindex\s+(\d+)`)
	pressedRe   = regexp.MustCompile(`(?i)(?:pressed|sent)\s+keys?:?\s+['"]?([\w+\-]+)['"]?`)
	scrolledRe  = regexp.MustCompile(`(?i)scrolled\s+(down|up)(?:\s+(?:by\s+)?(\d+))?`)
	selectedRe  = regexp.MustCompile(`(?i)selected\s+option\s+['"]?(.+?)['"]?\s+(?:in|at)\s+index\s+(\d+)`)
)

// indexBundle is the provisional locator used for narration-derived steps.
func indexBundle(index string) LocatorBundle {
	return LocatorBundle{Fallbacks: []locator.Candidate{{
		Kind:     locator.KindIndex,
		Selector: fmt.Sprintf("[data-index='%s']", index),
		Tier:     locator.TierIndex,
	}}}
}

// CaptureNarration recovers steps from free-text lines. Element steps get
// only index-based locators, which resolve far less reliably than
// structured captures.
func CaptureNarration(lines []string) []Step {
	var steps []Step
	for _, line := range lines {
		var st Step
		switch {
		case navigatedRe.MatchString(line):
			m := navigatedRe.FindStringSubmatch(line)
			st = &NavigationStep{BaseStep: BaseStep{StepType: StepNavigation}, URL: strings.TrimRight(m[1], ".,)")}
		case selectedRe.MatchString(line):
			m := selectedRe.FindStringSubmatch(line)
			st = &SelectOptionStep{BaseStep: BaseStep{StepType: StepSelectOption}, Locators: indexBundle(m[2]), SelectedText: m[1], ElementTag: "select"}
		case inputRe.MatchString(line):
			m := inputRe.FindStringSubmatch(line)
			st = &InputStep{BaseStep: BaseStep{StepType: StepInput}, Locators: indexBundle(m[2]), Value: strings.Trim(m[1], `'"`), ElementTag: "input"}
		case clickedRe.MatchString(line):
			m := clickedRe.FindStringSubmatch(line)
			st = &ClickStep{BaseStep: BaseStep{StepType: StepClick}, Locators: indexBundle(m[1]), ElementTag: "button"}
		case pressedRe.MatchString(line):
			m := pressedRe.FindStringSubmatch(line)
			st = &KeyPressStep{BaseStep: BaseStep{StepType: StepKeyPress}, Key: m[1]}
		case scrolledRe.MatchString(line):
			m := scrolledRe.FindStringSubmatch(line)
			amount := DefaultScrollAmount
			if m[2] != "" {
				amount, _ = strconv.Atoi(m[2])
			}
			if strings.EqualFold(m[1], "up") {
				amount = -amount
			}
			st = &ScrollStep{BaseStep: BaseStep{StepType: StepScroll}, DeltaY: amount}
		default:
			continue
		}
		st.Base().Description = st.Describe()
		steps = append(steps, st)
	}
	return steps
}

func paramString(params map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := params[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case []interface{}:
			parts := make([]string, 0, len(t))
			for _, p := range t {
				parts = append(parts, fmt.Sprint(p))
			}
			return strings.Join(parts, "+")
		default:
			return fmt.Sprint(t)
		}
	}
	return ""
}

func paramInt(params map[string]interface{}, keys ...string) (int, bool) {
	for _, k := range keys {
		v, ok := params[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case int:
			return t, true
		case int64:
			return int(t), true
		case float64:
			return int(math.Round(t)), true
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return int(math.Round(f)), true
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
