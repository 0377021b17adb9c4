package script

import (
	"errors"
	"testing"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/locator"
)

func TestNormalizeAction(t *testing.T) {
	tests := map[string]string{
		"go_to_url":              ActionNavigate,
		"input_text":             ActionInputText,
		"click_element_by_index": ActionClickByIndex,
		"send_keys":              ActionKeyPress,
		"scroll_up":              ActionScroll,
		"select_dropdown_option": ActionSelectOption,
		"Done":                   ActionDone,
		"hover":                  "",
	}
	for in, want := range tests {
		if got := NormalizeAction(in); got != want {
			t.Errorf("NormalizeAction(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeriveBundle(t *testing.T) {
	b := DeriveBundle(desc("input", "id", "email", "name", "email", "type", "email"))
	if b.Primary == nil || b.Primary.Selector != "#email" {
		t.Errorf("Primary = %+v, want #email", b.Primary)
	}
	if b.Semantic == nil || b.Semantic.Selector != "input[name='email']" {
		t.Errorf("Semantic = %+v, want input[name='email']", b.Semantic)
	}
	for _, f := range b.Fallbacks {
		if f.Selector == "#email" || f.Selector == "input[name='email']" {
			t.Errorf("Fallbacks repeat %q", f.Selector)
		}
	}

	b = DeriveBundle(desc("div", "class", "card-title"))
	if b.Primary != nil {
		t.Errorf("Primary = %+v, want nil without id or test id", b.Primary)
	}
	if len(b.Fallbacks) == 0 {
		t.Error("Fallbacks empty, want class and tag candidates")
	}
}

func TestDeriveBundle_ClonesDescriptor(t *testing.T) {
	d := desc("button", "id", "go")
	b := DeriveBundle(d)
	if b.Original == d {
		t.Error("Original shares the captured descriptor")
	}
}

func TestExtractLabel(t *testing.T) {
	d := desc("button", "title", "Tip", "value", "Go")
	d.VisibleText = "  Press   me "
	if got := ExtractLabel(d); got != "Go" {
		t.Errorf("ExtractLabel() = %q, want Go", got)
	}
	d = desc("a")
	d.VisibleText = "  Press   me "
	if got := ExtractLabel(d); got != "Press me" {
		t.Errorf("ExtractLabel() = %q, want %q", got, "Press me")
	}
}

func TestCaptureStep(t *testing.T) {
	btn := desc("button", "data-testid", "submit", "aria-label", "Submit form")

	st, err := CaptureStep("click_element_by_index", map[string]interface{}{"index": 4.0}, btn)
	if err != nil {
		t.Fatalf("CaptureStep(click) error = %v", err)
	}
	click, ok := st.(*ClickStep)
	if !ok {
		t.Fatalf("CaptureStep(click) = %T, want *ClickStep", st)
	}
	if click.ElementText != "Submit form" || click.Locators.Primary.Kind != locator.KindDataTestID {
		t.Errorf("click = %+v", click)
	}
	if click.Description == "" {
		t.Error("Description empty")
	}

	st, err = CaptureStep("go_to_url", map[string]interface{}{"url": "https://example.com"}, nil)
	if err != nil || st.(*NavigationStep).URL != "https://example.com" {
		t.Errorf("CaptureStep(go_to_url) = %+v, %v", st, err)
	}

	st, err = CaptureStep("scroll_up", nil, nil)
	if err != nil || st.(*ScrollStep).DeltaY != -DefaultScrollAmount {
		t.Errorf("CaptureStep(scroll_up) = %+v, %v", st, err)
	}

	st, err = CaptureStep("send_keys", map[string]interface{}{"keys": "Enter"}, nil)
	if err != nil {
		t.Fatalf("CaptureStep(send_keys) error = %v", err)
	}
	if kp := st.(*KeyPressStep); kp.Key != "Enter" || kp.Locators != nil {
		t.Errorf("key press = %+v, want page-level Enter", kp)
	}

	for _, a := range []string{"done", "wait", "extract_content", "hover"} {
		st, err := CaptureStep(a, nil, nil)
		if st != nil || err != nil {
			t.Errorf("CaptureStep(%q) = %v, %v, want nil, nil", a, st, err)
		}
	}
}

func TestCaptureStep_InvalidDescriptor(t *testing.T) {
	_, err := CaptureStep("input_text", map[string]interface{}{"text": "x"}, nil)
	if !errors.Is(err, core.ErrInvalidStepDescriptor) {
		t.Errorf("CaptureStep(input without element) error = %v, want ErrInvalidStepDescriptor", err)
	}
	_, err = CaptureStep("go_to_url", map[string]interface{}{}, nil)
	if !errors.Is(err, core.ErrInvalidStepDescriptor) {
		t.Errorf("CaptureStep(navigate without url) error = %v, want ErrInvalidStepDescriptor", err)
	}
}

func TestCaptureStep_TagOnlyElement(t *testing.T) {
	bare := &core.ElementDescriptor{Tag: "div"}
	_, err := CaptureStep("click_element_by_index", map[string]interface{}{"index": 2.0}, bare)
	if !errors.Is(err, core.ErrInvalidStepDescriptor) {
		t.Errorf("CaptureStep(click on bare div) error = %v, want ErrInvalidStepDescriptor", err)
	}

	bare.XPath = "/html[1]/body[1]/div[3]"
	st, err := CaptureStep("click_element_by_index", map[string]interface{}{"index": 2.0}, bare)
	if err != nil {
		t.Fatalf("CaptureStep(click on div with xpath) error = %v", err)
	}
	if !st.(*ClickStep).Locators.HasLocator() {
		t.Error("HasLocator() = false, want true with an xpath")
	}
}

func TestHasLocator(t *testing.T) {
	tag := locator.Candidate{Kind: locator.KindTag, Selector: "button", Tier: locator.TierTag}
	css := locator.Candidate{Kind: locator.KindClassCombo, Selector: "button.cta", Tier: locator.TierClassCombo}
	tests := []struct {
		name string
		b    *LocatorBundle
		want bool
	}{
		{"nil", nil, false},
		{"empty", &LocatorBundle{}, false},
		{"tag only", &LocatorBundle{Fallbacks: []locator.Candidate{tag}}, false},
		{"class combo", &LocatorBundle{Fallbacks: []locator.Candidate{css, tag}}, true},
		{"primary", &LocatorBundle{Primary: &css}, true},
		{"xpath", &LocatorBundle{Fallbacks: []locator.Candidate{tag}, Original: &core.ElementDescriptor{XPath: "//button"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.HasLocator(); got != tt.want {
				t.Errorf("HasLocator() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCaptureTrace_Structured(t *testing.T) {
	trace := &core.ActionTrace{
		Actions: []core.Action{
			{Name: "go_to_url", Params: map[string]interface{}{"url": "https://example.com"}},
			{Name: "input_text", Params: map[string]interface{}{"text": "bob"}},
			{Name: "input_text", Params: map[string]interface{}{"text": "bob"}, Element: desc("input", "name", "user")},
			{Name: "done"},
		},
		Narration: []string{"Navigated to https://ignored.example"},
	}
	res := CaptureTrace(trace)
	if res.Method != CaptureStructured {
		t.Errorf("Method = %q, want %q", res.Method, CaptureStructured)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(res.Steps))
	}
	if len(res.Dropped) != 1 {
		t.Errorf("len(Dropped) = %d, want 1", len(res.Dropped))
	}
}

func TestCaptureTrace_Narration(t *testing.T) {
	trace := &core.ActionTrace{
		Actions: []core.Action{{Name: "done"}},
		Narration: []string{
			"Navigated to https://example.com/login",
			"Input alice into index 3",
			"Clicked button with index 7",
			"Thinking about the page",
		},
	}
	res := CaptureTrace(trace)
	if res.Method != CaptureFreeText {
		t.Errorf("Method = %q, want %q", res.Method, CaptureFreeText)
	}
	if len(res.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(res.Steps))
	}
	if nav := res.Steps[0].(*NavigationStep); nav.URL != "https://example.com/login" {
		t.Errorf("URL = %q", nav.URL)
	}
	in := res.Steps[1].(*InputStep)
	if in.Value != "alice" || in.Locators.Fallbacks[0].Selector != "[data-index='3']" || in.ElementTag != "input" {
		t.Errorf("input = %+v", in)
	}
	if !in.Locators.IsProvisional() {
		t.Error("narration input not provisional")
	}
	click := res.Steps[2].(*ClickStep)
	if click.Locators.Fallbacks[0].Selector != "[data-index='7']" || click.ElementTag != "button" {
		t.Errorf("click = %+v", click)
	}
}

func TestCaptureTrace_Empty(t *testing.T) {
	res := CaptureTrace(&core.ActionTrace{})
	if len(res.Steps) != 0 {
		t.Errorf("len(Steps) = %d, want 0", len(res.Steps))
	}
}
