package classify

import (
	"reflect"
	"testing"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

var loginSteps = []string{
	"Given I navigate to the login page",
	"When I click the login button",
}

func statuses(v *Verdict) []core.StepStatus {
	out := make([]core.StepStatus, len(v.Steps))
	for i, s := range v.Steps {
		out[i] = s.Status
	}
	return out
}

func TestClassify_ExplicitMarkers(t *testing.T) {
	v := Classify([]string{
		"STEP_RESULT: PASSED - Navigated to page",
		"STEP_RESULT: FAILED - Login button not found",
	}, loginSteps)

	if v.OverallSuccess {
		t.Error("OverallSuccess = true, want false")
	}
	want := []core.StepStatus{core.StatusPassed, core.StatusFailed}
	if got := statuses(v); !reflect.DeepEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	for i, s := range v.Steps {
		if s.Basis != core.BasisExplicit || s.Inferred {
			t.Errorf("step %d basis = %v inferred = %v, want explicit", i, s.Basis, s.Inferred)
		}
	}
	if v.FailureDetails != "Login button not found" {
		t.Errorf("FailureDetails = %q", v.FailureDetails)
	}
	if v.FailureCategory != CategoryElementNotFound {
		t.Errorf("FailureCategory = %q, want %q", v.FailureCategory, CategoryElementNotFound)
	}
}

func TestClassify_SuccessKeyword(t *testing.T) {
	steps := append(loginSteps, "Then I see the dashboard")
	v := Classify([]string{"Clicked a few things", "Task completed successfully"}, steps)

	if !v.OverallSuccess {
		t.Fatal("OverallSuccess = false, want true")
	}
	if v.Keyword != "task_completed" {
		t.Errorf("Keyword = %q, want task_completed", v.Keyword)
	}
	for i, s := range v.Steps {
		if s.Status != core.StatusPassed || s.Basis != core.BasisPositional || !s.Inferred {
			t.Errorf("step %d = %+v, want inferred pass", i, s)
		}
		if s.DisplayStatus() != core.StatusInferred {
			t.Errorf("step %d DisplayStatus = %v, want inferred", i, s.DisplayStatus())
		}
	}
	if v.FailureDetails != "" {
		t.Errorf("FailureDetails = %q, want empty on success", v.FailureDetails)
	}
}

func TestClassify_FailureKeywordDominates(t *testing.T) {
	steps := []string{"Given I open the site", "When I log in", "Then I see my profile"}
	v := Classify([]string{
		"Execution stopped at step 2 due to login failure",
		"STEP_RESULT: PASSED - done",
	}, steps)

	if v.OverallSuccess {
		t.Fatal("OverallSuccess = true, want false (failure keyword dominates)")
	}
	if v.OverallBasis != core.BasisKeyword {
		t.Errorf("OverallBasis = %v, want keyword", v.OverallBasis)
	}
	if v.Steps[1].Status != core.StatusFailed || v.Steps[1].Basis != core.BasisKeyword {
		t.Errorf("step 2 = %+v, want keyword failure", v.Steps[1])
	}
	if v.FailureCategory != CategoryAuthentication {
		t.Errorf("FailureCategory = %q, want authentication", v.FailureCategory)
	}
}

func TestClassify_SilenceIsFailure(t *testing.T) {
	v := Classify([]string{"Looked at the page", "Clicked around"}, loginSteps)
	if v.OverallSuccess || v.Signal {
		t.Errorf("OverallSuccess = %v, Signal = %v, want false, false", v.OverallSuccess, v.Signal)
	}
	want := []core.StepStatus{core.StatusPassed, core.StatusFailed}
	if got := statuses(v); !reflect.DeepEqual(got, want) {
		t.Errorf("positional statuses = %v, want %v", got, want)
	}
	if !v.Steps[0].Inferred || !v.Steps[1].Inferred {
		t.Error("positional steps not marked inferred")
	}
}

func TestClassify_SimilarityBeatsOrdinal(t *testing.T) {
	v := Classify([]string{
		"STEP_RESULT: PASSED - click the login button",
		"STEP_RESULT: PASSED - navigate to the login page",
	}, loginSteps)

	if !v.OverallSuccess {
		t.Fatal("OverallSuccess = false, want true")
	}
	if v.Steps[0].Message != "navigate to the login page" {
		t.Errorf("step 1 matched %q, want the navigation marker", v.Steps[0].Message)
	}
	if v.Steps[1].Message != "click the login button" {
		t.Errorf("step 2 matched %q, want the click marker", v.Steps[1].Message)
	}
}

func TestClassify_StepFailedOverrides(t *testing.T) {
	v := Classify([]string{
		"STEP_RESULT: PASSED - navigate to the login page",
		"STEP_RESULT: PASSED - click the login button",
		"STEP_FAILED: click the login button",
	}, loginSteps)
	if v.Steps[1].Status != core.StatusFailed {
		t.Errorf("step 2 = %v, want failed", v.Steps[1].Status)
	}
	if v.OverallSuccess {
		t.Error("OverallSuccess = true, want false")
	}
}

func TestClassify_AssertionMarkersAndDetails(t *testing.T) {
	v := Classify([]string{
		"ASSERTION PASSED: page title is Login",
		"Assertion failed at step 2: welcome banner missing",
	}, loginSteps)
	if v.OverallSuccess {
		t.Fatal("OverallSuccess = true, want false")
	}
	if v.Steps[1].Status != core.StatusFailed || v.Steps[1].Basis != core.BasisExplicit {
		t.Errorf("step 2 = %+v, want explicit failure", v.Steps[1])
	}
	if v.FailureDetails != "welcome banner missing" {
		t.Errorf("FailureDetails = %q, want %q", v.FailureDetails, "welcome banner missing")
	}
}

func TestClassify_Idempotent(t *testing.T) {
	transcript := []string{
		"STEP_RESULT: PASSED - Navigated to page\nsome noise",
		"Authentication Error: bad password",
	}
	a := Classify(transcript, loginSteps)
	b := Classify(transcript, loginSteps)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Classify not deterministic:\n%+v\n%+v", a, b)
	}
	if a.FailureDetails != "bad password" {
		t.Errorf("FailureDetails = %q, want %q", a.FailureDetails, "bad password")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"a b", "", 0},
		{"click login", "click login", 1},
		{"click the login button", "click login button", 0.75},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestStepsMatch(t *testing.T) {
	tests := []struct {
		step, desc string
		want       bool
	}{
		{"When I click the login button", "Step 2: I click the login button", true},
		{"Then I see the dashboard", "dashboard", true},
		{"Given I open the site", "Login button not found", false},
		{"Given ", "anything", false},
	}
	for _, tt := range tests {
		if got := StepsMatch(tt.step, tt.desc); got != tt.want {
			t.Errorf("StepsMatch(%q, %q) = %v, want %v", tt.step, tt.desc, got, tt.want)
		}
	}
}

func TestCategorizeError(t *testing.T) {
	tests := map[string]Category{
		"Authentication Error: bad password": CategoryAuthentication,
		"element not found: #submit":         CategoryElementNotFound,
		"request timed out":                  CategoryTimeout,
		"Assertion failed":                   CategoryAssertion,
		"navigation to /home failed":         CategoryNavigation,
		"something odd":                      CategoryGeneral,
	}
	for in, want := range tests {
		if got := CategorizeError(in); got != want {
			t.Errorf("CategorizeError(%q) = %q, want %q", in, got, want)
		}
	}
}
