// Package script models recorded, replayable browser steps and the JSON
// script documents that hold them.
package script

import (
	"fmt"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/locator"
)

// StepType is the persisted discriminator of a step.
type StepType string

// Step type constants.
const (
	StepNavigation   StepType = "navigation"
	StepClick        StepType = "click"
	StepInput        StepType = "input"
	StepKeyPress     StepType = "key_press"
	StepScroll       StepType = "scroll"
	StepSelectOption StepType = "select_change"
)

// Step is the interface for all recorded steps.
type Step interface {
	Type() StepType
	Describe() string
	Base() *BaseStep
}

// Locatable is implemented by steps that act on an element.
type Locatable interface {
	Step
	Bundle() *LocatorBundle
}

// BaseStep contains common fields for all steps.
type BaseStep struct {
	StepType    StepType
	Description string
	Timestamp   int64 // Unix milliseconds at capture, 0 = unknown
}

// Type returns the step type.
func (b *BaseStep) Type() StepType { return b.StepType }

// Base returns the common fields.
func (b *BaseStep) Base() *BaseStep { return b }

// LocatorBundle is every strategy persisted for finding a step's element.
type LocatorBundle struct {
	Primary   *locator.Candidate
	Semantic  *locator.Candidate
	Fallbacks []locator.Candidate
	Original  *core.ElementDescriptor
}

// HasLocator reports whether the bundle can resolve a specific element.
// A bare tag selector matches any element of that kind and does not count.
func (b *LocatorBundle) HasLocator() bool {
	if b == nil {
		return false
	}
	if b.Primary != nil || b.Semantic != nil || (b.Original != nil && b.Original.XPath != "") {
		return true
	}
	for _, c := range b.Fallbacks {
		if c.Kind != locator.KindTag {
			return true
		}
	}
	return false
}

// Candidates returns the bundle's candidates in replay order: primary,
// semantic, fallbacks, then a fresh synthesis from the original descriptor.
// The descriptor's xpath is left to the resolver's xpath layer.
func (b *LocatorBundle) Candidates() []locator.Candidate {
	if b == nil {
		return nil
	}
	var out []locator.Candidate
	if b.Primary != nil {
		out = append(out, *b.Primary)
	}
	if b.Semantic != nil {
		out = append(out, *b.Semantic)
	}
	out = append(out, b.Fallbacks...)
	if b.Original != nil {
		out = append(out, locator.Synthesize(b.Original)...)
	}

	seen := make(map[string]bool, len(out))
	uniq := out[:0]
	for _, c := range out {
		if seen[c.Selector] {
			continue
		}
		seen[c.Selector] = true
		uniq = append(uniq, c)
	}
	return uniq
}

// IsProvisional reports whether the bundle only holds index-based locators
// recovered from narration.
func (b *LocatorBundle) IsProvisional() bool {
	if b == nil || b.Primary != nil || b.Semantic != nil || b.Original != nil {
		return false
	}
	for _, c := range b.Fallbacks {
		if !c.IsProvisional() {
			return false
		}
	}
	return len(b.Fallbacks) > 0
}

// Display returns the best selector for messages.
func (b *LocatorBundle) Display() string {
	if c := b.Candidates(); len(c) > 0 {
		return c[0].Selector
	}
	if b != nil && b.Original != nil && b.Original.XPath != "" {
		return locator.NormalizeXPath(b.Original.XPath)
	}
	return ""
}

// NavigationStep loads a URL.
type NavigationStep struct {
	BaseStep
	URL string
}

func (s *NavigationStep) Describe() string { return fmt.Sprintf("navigate to %s", s.URL) }

// ClickStep clicks an element.
type ClickStep struct {
	BaseStep
	Locators    LocatorBundle
	ElementTag  string
	ElementText string
}

func (s *ClickStep) Bundle() *LocatorBundle { return &s.Locators }

func (s *ClickStep) Describe() string {
	if s.ElementText != "" {
		return fmt.Sprintf("click %s %q", s.ElementTag, s.ElementText)
	}
	return fmt.Sprintf("click %s", core.TruncateSelector(s.Locators.Display()))
}

// InputStep types a value into an element.
type InputStep struct {
	BaseStep
	Locators   LocatorBundle
	Value      string
	ElementTag string
}

func (s *InputStep) Bundle() *LocatorBundle { return &s.Locators }

func (s *InputStep) Describe() string {
	return fmt.Sprintf("input %q into %s", s.Value, core.TruncateSelector(s.Locators.Display()))
}

// KeyPressStep presses a key, on an element when Locators is set.
type KeyPressStep struct {
	BaseStep
	Key      string
	Locators *LocatorBundle
}

// Bundle returns the scope bundle, or nil for page-level presses.
func (s *KeyPressStep) Bundle() *LocatorBundle { return s.Locators }

func (s *KeyPressStep) Describe() string { return fmt.Sprintf("press %s", s.Key) }

// ScrollStep scrolls the page by a pixel delta.
type ScrollStep struct {
	BaseStep
	DeltaX int
	DeltaY int
}

func (s *ScrollStep) Describe() string { return fmt.Sprintf("scroll by (%d, %d)", s.DeltaX, s.DeltaY) }

// SelectOptionStep picks a <select> option by its visible label.
type SelectOptionStep struct {
	BaseStep
	Locators     LocatorBundle
	SelectedText string
	ElementTag   string
}

func (s *SelectOptionStep) Bundle() *LocatorBundle { return &s.Locators }

func (s *SelectOptionStep) Describe() string {
	return fmt.Sprintf("select %q in %s", s.SelectedText, core.TruncateSelector(s.Locators.Display()))
}

// NeedsLocator reports whether a step must carry at least one locator.
func NeedsLocator(s Step) bool {
	switch st := s.(type) {
	case *ClickStep, *InputStep, *SelectOptionStep:
		return true
	case *KeyPressStep:
		return st.Locators != nil
	}
	return false
}

// CheckLocators enforces the locator invariant for one step.
func CheckLocators(s Step) error {
	if !NeedsLocator(s) {
		return nil
	}
	if l, ok := s.(Locatable); ok && l.Bundle().HasLocator() {
		return nil
	}
	return core.ErrInvalidStepDescriptor.WithDetails(map[string]interface{}{"type": string(s.Type())})
}
