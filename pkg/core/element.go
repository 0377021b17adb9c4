package core

import (
	"encoding/json"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Attribute is one DOM attribute.
type Attribute struct {
	Name  string
	Value string
}

// Attributes is an ordered attribute mapping. Iteration order is the DOM
// attribute order at capture time and survives JSON round trips.
type Attributes struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewAttributes builds Attributes in the given order. A repeated name keeps
// its first position and takes the last value.
func NewAttributes(attrs ...Attribute) Attributes {
	m := orderedmap.New[string, string]()
	for _, a := range attrs {
		m.Set(a.Name, a.Value)
	}
	return Attributes{m: m}
}

// Get returns the value for name and whether it is present.
func (a Attributes) Get(name string) (string, bool) {
	if a.m == nil {
		return "", false
	}
	return a.m.Get(name)
}

// Value returns the value for name, or "" when absent.
func (a Attributes) Value(name string) string {
	v, _ := a.Get(name)
	return v
}

// Len returns the number of attributes.
func (a Attributes) Len() int {
	if a.m == nil {
		return 0
	}
	return a.m.Len()
}

// List returns the attributes in order.
func (a Attributes) List() []Attribute {
	if a.m == nil {
		return nil
	}
	out := make([]Attribute, 0, a.m.Len())
	for p := a.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, Attribute{Name: p.Key, Value: p.Value})
	}
	return out
}

// Classes splits the class attribute into its tokens.
func (a Attributes) Classes() []string {
	return strings.Fields(a.Value("class"))
}

// MarshalJSON writes an object whose keys follow attribute order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	if a.m == nil {
		return []byte("{}"), nil
	}
	return a.m.MarshalJSON()
}

// UnmarshalJSON reads an object, keeping key order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, string]()
	if string(data) != "null" {
		if err := json.Unmarshal(data, m); err != nil {
			return err
		}
	}
	a.m = m
	return nil
}

// BoundingBox is element geometry in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementDescriptor is a snapshot of a DOM element at capture time.
// It is never mutated after capture and belongs to exactly one step.
type ElementDescriptor struct {
	Tag         string       `json:"tag"`
	Attributes  Attributes   `json:"attributes"`
	CSSSelector string       `json:"cssSelector,omitempty"`
	XPath       string       `json:"xpath,omitempty"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
	VisibleText string       `json:"visibleText,omitempty"`
}

// Attr returns the named attribute value, or "".
func (d *ElementDescriptor) Attr(name string) string {
	if d == nil {
		return ""
	}
	return d.Attributes.Value(name)
}

// TagName returns the lowercased tag.
func (d *ElementDescriptor) TagName() string {
	if d == nil {
		return ""
	}
	return strings.ToLower(d.Tag)
}

// Clone returns a deep copy so a descriptor is never shared between steps.
func (d *ElementDescriptor) Clone() *ElementDescriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Attributes = NewAttributes(d.Attributes.List()...)
	if d.BoundingBox != nil {
		bb := *d.BoundingBox
		c.BoundingBox = &bb
	}
	return &c
}
