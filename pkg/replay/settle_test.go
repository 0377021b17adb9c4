package replay

import (
	"testing"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/script"
)

func TestSettleFor(t *testing.T) {
	s := DefaultSettle()
	click := func(text string, d *script.LocatorBundle) script.Step {
		st := &script.ClickStep{BaseStep: script.BaseStep{StepType: script.StepClick}, ElementText: text}
		if d != nil {
			st.Locators = *d
		}
		return st
	}
	submitBundle := script.DeriveBundle(desc("button", "type", "submit"))

	tests := []struct {
		name string
		step script.Step
		want time.Duration
	}{
		{"navigation", &script.NavigationStep{}, 2500 * time.Millisecond},
		{"plain click", click("Next", nil), 2 * time.Second},
		{"sign in click", click("Sign In", nil), 3500 * time.Millisecond},
		{"submit type", click("", &submitBundle), 3500 * time.Millisecond},
		{"input", &script.InputStep{}, time.Second},
		{"scroll", &script.ScrollStep{}, 500 * time.Millisecond},
		{"enter", &script.KeyPressStep{Key: "Enter"}, 2 * time.Second},
		{"tab", &script.KeyPressStep{Key: "Tab"}, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := s.For(tt.step); got != tt.want {
			t.Errorf("For(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
