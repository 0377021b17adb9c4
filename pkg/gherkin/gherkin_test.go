package gherkin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

const loginScenario = `Feature: Login
  # smoke test
  Scenario: Valid user logs in
    Given I navigate to https://example.com/login
    When I enter email "a@b.c"
      and password "secret"
    And I click "Sign in"
    Then I should see the dashboard
`

func TestParseSteps(t *testing.T) {
	steps := ParseSteps(loginScenario)
	if len(steps) != 4 {
		t.Fatalf("len(steps) = %d, want 4", len(steps))
	}
	if steps[0].Keyword != "Given" || steps[0].Text != "I navigate to https://example.com/login" {
		t.Errorf("steps[0] = %+v", steps[0])
	}
	if len(steps[1].Lines) != 2 || steps[1].Lines[1] != `and password "secret"` {
		t.Errorf("steps[1].Lines = %q, want continuation line", steps[1].Lines)
	}
	if got := StepLines(loginScenario)[3]; got != "Then I should see the dashboard" {
		t.Errorf("StepLines()[3] = %q", got)
	}
}

func TestExtractStep(t *testing.T) {
	got, err := ExtractStep(loginScenario, 1)
	if err != nil {
		t.Fatalf("ExtractStep() error = %v", err)
	}
	want := "Feature: Login\n\nScenario: Valid user logs in\n    When I enter email \"a@b.c\"\n    and password \"secret\""
	if got != want {
		t.Errorf("ExtractStep() =\n%s\nwant\n%s", got, want)
	}
}

func TestExtractStep_DefaultHeaders(t *testing.T) {
	got, err := ExtractStep("Given I open the site\nThen I see it", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, DefaultFeature+"\n\n"+DefaultScenario+"\n") {
		t.Errorf("ExtractStep() = %q, want default headers", got)
	}
	if !strings.HasSuffix(got, "    Then I see it") {
		t.Errorf("ExtractStep() = %q", got)
	}

	_, err = ExtractStep("Given x", 3)
	if !errors.Is(err, core.ErrInvalidScenario) {
		t.Errorf("out of range error = %v, want ErrInvalidScenario", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"complete", loginScenario, true},
		{"no feature", "Scenario: x\nGiven y", false},
		{"no scenario", "Feature: x\nGiven y", false},
		{"no steps", "Feature: x\nScenario: y\n", false},
		{"plain text", "go to example.com and log in", false},
	}
	for _, tt := range tests {
		if err := Validate(tt.text); (err == nil) != tt.ok {
			t.Errorf("Validate(%s) = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	in := "Here you go:\n```gherkin\nFeature: A\nScenario: B\nGiven C\n```\nthanks"
	if got := StripCodeFence(in); got != "Feature: A\nScenario: B\nGiven C" {
		t.Errorf("StripCodeFence() = %q", got)
	}
	if got := StripCodeFence("  Feature: A  "); got != "Feature: A" {
		t.Errorf("StripCodeFence(no fence) = %q", got)
	}
}

type fakeModel struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	prompts      []string
}

func (m *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.CompleteFunc(ctx, prompt)
}

func TestTranslator(t *testing.T) {
	model := &fakeModel{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		return "```gherkin\nFeature: Login\nScenario: Log in\n  Given I navigate to https://x.test\n```", nil
	}}
	tr := &Translator{Model: model}

	got, err := tr.ToScenario(context.Background(), "go to https://x.test")
	if err != nil {
		t.Fatalf("ToScenario() error = %v", err)
	}
	if !strings.HasPrefix(got, "Feature: Login") {
		t.Errorf("ToScenario() = %q", got)
	}
	if len(model.prompts) != 1 || !strings.Contains(model.prompts[0], "https://x.test") {
		t.Errorf("prompts = %q", model.prompts)
	}

	if _, err := tr.ToScenario(context.Background(), loginScenario); err != nil || len(model.prompts) != 1 {
		t.Errorf("Gherkin input should pass through without a model call (err = %v)", err)
	}
}

func TestTranslator_Errors(t *testing.T) {
	bad := &Translator{Model: &fakeModel{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		return "I cannot help with that", nil
	}}}
	if _, err := bad.ToScenario(context.Background(), "do things"); !errors.Is(err, core.ErrInvalidScenario) {
		t.Errorf("invalid answer error = %v, want ErrInvalidScenario", err)
	}

	failing := &Translator{Model: &fakeModel{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("rate limited")
	}}}
	if _, err := failing.ToScenario(context.Background(), "do things"); !errors.Is(err, core.ErrAgentInvocation) {
		t.Errorf("model error = %v, want ErrAgentInvocation", err)
	}

	var none *Translator
	if _, err := none.ToScenario(context.Background(), "do things"); err == nil {
		t.Error("nil translator with plain text should fail")
	}
}

func TestBrowserTask(t *testing.T) {
	task := BrowserTask("Given I open the site", StopOnFirst)
	for _, want := range []string{"Given I open the site", "STEP_RESULT: PASSED", "ASSERTION FAILED", "Stop immediately"} {
		if !strings.Contains(task, want) {
			t.Errorf("BrowserTask() missing %q", want)
		}
	}
	if FailureBehavior("sometimes").Valid() {
		t.Error("unknown behavior reported valid")
	}
}

func TestReadTestFile(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTestFile(empty); !errors.Is(err, core.ErrInvalidScenario) {
		t.Errorf("ReadTestFile(empty) = %v, want ErrInvalidScenario", err)
	}
	if _, err := ReadTestFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("ReadTestFile(missing) expected error")
	}
}
