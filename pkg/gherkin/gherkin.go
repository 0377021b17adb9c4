// Package gherkin parses Given/When/Then scenarios and slices them into
// single-step sub-scenarios.
package gherkin

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

// Default headers used when a scenario has none.
const (
	DefaultFeature  = "Feature: Test Step"
	DefaultScenario = "Scenario: Execute Step"
)

// Step is one keyword line plus its continuation lines.
type Step struct {
	Keyword string
	Text    string
	Lines   []string // Keyword line first, then continuations
}

// Line returns the keyword line.
func (s Step) Line() string {
	return s.Keyword + " " + s.Text
}

var (
	stepLineRe = regexp.MustCompile(`^(Given|When|Then|And|But)\s+(.*)$`)
	headerRe   = regexp.MustCompile(`^(Feature|Background|Scenario|Scenario Outline|Scenario Template|Examples|Rule):`)
	featureRe  = regexp.MustCompile(`(?i)Feature:\s*\w+`)
	scenarioRe = regexp.MustCompile(`(?i)Scenario:\s*\w+`)
	anyStepRe  = regexp.MustCompile(`(?m)^\s*(Given|When|Then|And|But)\s+`)
)

// ParseSteps returns the steps of a scenario in order. Blank lines and
// comments are skipped; any other non-header line following a step belongs
// to that step.
func ParseSteps(scenario string) []Step {
	var steps []Step
	inStep := false
	for _, raw := range strings.Split(scenario, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if m := stepLineRe.FindStringSubmatch(line); m != nil {
			steps = append(steps, Step{Keyword: m[1], Text: strings.TrimSpace(m[2]), Lines: []string{line}})
			inStep = true
			continue
		}
		if headerRe.MatchString(line) {
			inStep = false
			continue
		}
		if inStep {
			last := &steps[len(steps)-1]
			last.Lines = append(last.Lines, line)
		}
	}
	return steps
}

// StepLines returns just the keyword line of every step.
func StepLines(scenario string) []string {
	steps := ParseSteps(scenario)
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Line()
	}
	return out
}

// ExtractStep returns a minimal scenario holding only step idx, under the
// scenario's own Feature/Scenario headers or the defaults.
func ExtractStep(scenario string, idx int) (string, error) {
	steps := ParseSteps(scenario)
	if idx < 0 || idx >= len(steps) {
		return "", core.ErrInvalidScenario.WithMessage(fmt.Sprintf("scenario has no step %d (%d steps)", idx+1, len(steps)))
	}
	return Wrap(headerLine(scenario, "Feature:", DefaultFeature), headerLine(scenario, "Scenario:", DefaultScenario), steps[idx].Lines), nil
}

// Wrap renders step lines under the given headers.
func Wrap(feature, scenario string, lines []string) string {
	return feature + "\n\n" + scenario + "\n    " + strings.Join(lines, "\n    ")
}

func headerLine(scenario, prefix, fallback string) string {
	for _, raw := range strings.Split(scenario, "\n") {
		if line := strings.TrimSpace(raw); strings.HasPrefix(line, prefix) {
			return line
		}
	}
	return fallback
}

// Validate checks for a Feature, a Scenario and at least one step.
func Validate(text string) error {
	switch {
	case !featureRe.MatchString(text):
		return core.ErrInvalidScenario.WithMessage("missing Feature declaration")
	case !scenarioRe.MatchString(text):
		return core.ErrInvalidScenario.WithMessage("missing Scenario declaration")
	case !anyStepRe.MatchString(text):
		return core.ErrInvalidScenario.WithMessage("no Given/When/Then steps")
	}
	return nil
}

// IsGherkin reports whether text already is a valid scenario.
func IsGherkin(text string) bool {
	return Validate(text) == nil
}

var codeFenceRe = regexp.MustCompile("(?s)```(?:gherkin|feature|cucumber|markdown|text)?\\s*\\n(.*?)```")

// StripCodeFence returns the body of the first fenced block, or the
// trimmed text when there is none.
func StripCodeFence(text string) string {
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ReadTestFile reads a test source and rejects empty files.
func ReadTestFile(path string) (string, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-supplied test path
	if err != nil {
		return "", fmt.Errorf("failed to read test file: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", core.ErrInvalidScenario.WithMessage(fmt.Sprintf("test file %s is empty", path))
	}
	return content, nil
}
