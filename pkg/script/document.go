package script

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/locator"
)

// InitialVersion is the version of a freshly captured script.
const InitialVersion = "1.0.0"

// InputField declares one run input usable as ${name} in step values.
type InputField struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Required bool        `json:"required"`
	Default  interface{} `json:"default,omitempty"`
}

// Metadata is the script's audit trail.
type Metadata struct {
	CreatedAt     string `json:"created_at,omitempty"`
	LastUpdated   string `json:"last_updated,omitempty"`
	Source        string `json:"source,omitempty"`
	CaptureMethod string `json:"capture_method,omitempty"`
	UpdatedSteps  []int  `json:"updated_steps,omitempty"`
}

// MarkUpdated adds idx to UpdatedSteps if it is not already there.
func (m *Metadata) MarkUpdated(idx int) {
	for _, i := range m.UpdatedSteps {
		if i == idx {
			return
		}
	}
	m.UpdatedSteps = append(m.UpdatedSteps, idx)
	sort.Ints(m.UpdatedSteps)
}

// Script is an ordered list of replayable steps plus metadata.
type Script struct {
	Name        string
	Description string
	Version     string
	Steps       []Step
	InputSchema []InputField
	Metadata    Metadata
}

type scriptJSON struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Steps       []stepJSON   `json:"steps"`
	InputSchema []InputField `json:"input_schema"`
	Metadata    Metadata     `json:"metadata"`
}

// stepJSON is the flat wire form shared by every step variant.
type stepJSON struct {
	Type        StepType `json:"type"`
	Description string   `json:"description,omitempty"`
	Timestamp   int64    `json:"timestamp,omitempty"`

	URL          string  `json:"url,omitempty"`
	Value        *string `json:"value,omitempty"`
	Key          string  `json:"key,omitempty"`
	ScrollX      *int    `json:"scrollX,omitempty"`
	ScrollY      *int    `json:"scrollY,omitempty"`
	SelectedText string  `json:"selectedText,omitempty"`
	ElementTag   string  `json:"elementTag,omitempty"`
	ElementText  string  `json:"elementText,omitempty"`

	CSSSelector       string            `json:"cssSelector,omitempty"`
	XPath             string            `json:"xpath,omitempty"`
	PrimarySelector   string            `json:"primarySelector,omitempty"`
	SemanticSelector  string            `json:"semanticSelector,omitempty"`
	FallbackSelectors []string          `json:"fallbackSelectors,omitempty"`
	ElementAttributes *core.Attributes  `json:"elementAttributes,omitempty"`
	VisibleText       string            `json:"visibleText,omitempty"`
	BoundingBox       *core.BoundingBox `json:"boundingBox,omitempty"`
}

// MarshalJSON writes the script document format.
func (s *Script) MarshalJSON() ([]byte, error) {
	doc := scriptJSON{
		Name:        s.Name,
		Description: s.Description,
		Version:     s.Version,
		Steps:       make([]stepJSON, 0, len(s.Steps)),
		InputSchema: s.InputSchema,
		Metadata:    s.Metadata,
	}
	if doc.InputSchema == nil {
		doc.InputSchema = []InputField{}
	}
	for i, st := range s.Steps {
		w, err := encodeStep(st)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		doc.Steps = append(doc.Steps, w)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the script document format.
func (s *Script) UnmarshalJSON(data []byte) error {
	var doc scriptJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	steps := make([]Step, 0, len(doc.Steps))
	for i, w := range doc.Steps {
		st, err := decodeStep(w)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, st)
	}
	*s = Script{
		Name:        doc.Name,
		Description: doc.Description,
		Version:     doc.Version,
		Steps:       steps,
		InputSchema: doc.InputSchema,
		Metadata:    doc.Metadata,
	}
	return nil
}

// DecodeStep decodes one step object of the document format.
func DecodeStep(data []byte) (Step, error) {
	var w stepJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return decodeStep(w)
}

func encodeBundle(w *stepJSON, b *LocatorBundle) {
	if b == nil {
		return
	}
	if b.Primary != nil {
		w.PrimarySelector = b.Primary.Selector
	}
	if b.Semantic != nil {
		w.SemanticSelector = b.Semantic.Selector
	}
	for _, c := range b.Fallbacks {
		w.FallbackSelectors = append(w.FallbackSelectors, c.Selector)
	}
	if d := b.Original; d != nil {
		w.CSSSelector = d.CSSSelector
		w.XPath = d.XPath
		w.VisibleText = d.VisibleText
		w.BoundingBox = d.BoundingBox
		if w.ElementTag == "" {
			w.ElementTag = d.Tag
		}
		if d.Attributes.Len() > 0 {
			attrs := d.Attributes
			w.ElementAttributes = &attrs
		}
	}
}

func encodeStep(st Step) (stepJSON, error) {
	b := st.Base()
	w := stepJSON{Type: st.Type(), Description: b.Description, Timestamp: b.Timestamp}
	switch s := st.(type) {
	case *NavigationStep:
		w.URL = s.URL
	case *ClickStep:
		w.ElementTag = s.ElementTag
		w.ElementText = s.ElementText
		encodeBundle(&w, &s.Locators)
	case *InputStep:
		v := s.Value
		w.Value = &v
		w.ElementTag = s.ElementTag
		encodeBundle(&w, &s.Locators)
	case *KeyPressStep:
		w.Key = s.Key
		encodeBundle(&w, s.Locators)
	case *ScrollStep:
		x, y := s.DeltaX, s.DeltaY
		w.ScrollX, w.ScrollY = &x, &y
	case *SelectOptionStep:
		w.SelectedText = s.SelectedText
		w.ElementTag = s.ElementTag
		encodeBundle(&w, &s.Locators)
	default:
		return w, fmt.Errorf("unsupported step %T", st)
	}
	return w, nil
}

func decodeBundle(w stepJSON) LocatorBundle {
	var b LocatorBundle
	if w.PrimarySelector != "" {
		c := locator.Classify(w.PrimarySelector)
		b.Primary = &c
	}
	if w.SemanticSelector != "" {
		c := locator.Classify(w.SemanticSelector)
		b.Semantic = &c
	}
	for _, sel := range w.FallbackSelectors {
		if sel != "" {
			b.Fallbacks = append(b.Fallbacks, locator.Classify(sel))
		}
	}
	if w.CSSSelector != "" || w.XPath != "" || w.ElementAttributes != nil {
		d := &core.ElementDescriptor{
			Tag:         w.ElementTag,
			CSSSelector: w.CSSSelector,
			XPath:       w.XPath,
			VisibleText: w.VisibleText,
			BoundingBox: w.BoundingBox,
		}
		if w.ElementAttributes != nil {
			d.Attributes = *w.ElementAttributes
		}
		b.Original = d
	}
	return b
}

func hasBundle(w stepJSON) bool {
	return w.PrimarySelector != "" || w.SemanticSelector != "" || len(w.FallbackSelectors) > 0 ||
		w.CSSSelector != "" || w.XPath != "" || w.ElementAttributes != nil
}

func decodeStep(w stepJSON) (Step, error) {
	base := BaseStep{StepType: w.Type, Description: w.Description, Timestamp: w.Timestamp}
	switch w.Type {
	case StepNavigation:
		return &NavigationStep{BaseStep: base, URL: w.URL}, nil
	case StepClick:
		return &ClickStep{BaseStep: base, Locators: decodeBundle(w), ElementTag: w.ElementTag, ElementText: w.ElementText}, nil
	case StepInput:
		s := &InputStep{BaseStep: base, Locators: decodeBundle(w), ElementTag: w.ElementTag}
		if w.Value != nil {
			s.Value = *w.Value
		}
		return s, nil
	case StepKeyPress:
		s := &KeyPressStep{BaseStep: base, Key: w.Key}
		if hasBundle(w) {
			b := decodeBundle(w)
			s.Locators = &b
		}
		return s, nil
	case StepScroll:
		s := &ScrollStep{BaseStep: base}
		if w.ScrollX != nil {
			s.DeltaX = *w.ScrollX
		}
		if w.ScrollY != nil {
			s.DeltaY = *w.ScrollY
		}
		return s, nil
	case StepSelectOption:
		return &SelectOptionStep{BaseStep: base, Locators: decodeBundle(w), SelectedText: w.SelectedText, ElementTag: w.ElementTag}, nil
	case "":
		return nil, fmt.Errorf("missing step type")
	default:
		return nil, fmt.Errorf("unknown step type %q", w.Type)
	}
}
